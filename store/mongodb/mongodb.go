/*
Package mongodb provides a MongoDB-backed implementation of the attendance
storage interfaces.

COLLECTIONS:
  employees:  _id = employee id
  attendance: _id = record id (employee_id-date), unique (employee_id, date)
  audit_log:  _id = audit entry id, ordered by seq

ENCODING:
  Timestamps are RFC3339Nano strings in UTC and hourly rates are decimal
  strings. Both round-trip exactly, and the string form makes the check_in
  equality below a plain field match.

CONDITIONAL WRITES:
  check-in:  InsertOne; a duplicate-key error means the key is taken
  check-out: UpdateOne filtered on {_id, check_in, check_out absent};
             MatchedCount == 0 means the record moved on
  Both return attendance.ErrConcurrentModification.

SEE ALSO:
  - store/sqlite/sqlite.go: Same contract on SQLite
  - attendance/store.go: Interface definitions
*/
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/warp/attendance-engine/attendance"
)

type Store struct {
	client     *mongo.Client
	employees  *mongo.Collection
	attendance *mongo.Collection
	audit      *mongo.Collection
}

var (
	_ attendance.Repository = (*Store)(nil)
	_ attendance.AuditLog   = (*Store)(nil)
)

// New connects, pings and ensures indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:     client,
		employees:  db.Collection("employees"),
		attendance: db.Collection("attendance"),
		audit:      db.Collection("audit_log"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("connected to mongodb", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.attendance.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "employee_id", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: -1}, {Key: "employee_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create attendance indexes: %w", err)
	}

	if _, err := s.audit.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "seq", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create audit_log indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type employeeDoc struct {
	ID         string `bson:"_id"`
	Name       string `bson:"name"`
	HourlyRate string `bson:"hourly_rate"`
	CreatedAt  string `bson:"created_at"`
}

type recordDoc struct {
	ID         string `bson:"_id"`
	EmployeeID string `bson:"employee_id"`
	Date       string `bson:"date"`
	CheckIn    string `bson:"check_in,omitempty"`
	CheckOut   string `bson:"check_out,omitempty"`
}

type auditDoc struct {
	ID         string `bson:"_id"`
	Seq        int64  `bson:"seq"`
	At         string `bson:"at"`
	EmployeeID string `bson:"employee_id"`
	Event      string `bson:"event"`
	Date       string `bson:"date,omitempty"`
	Outcome    string `bson:"outcome"`
	Detail     string `bson:"detail,omitempty"`
}

func (d recordDoc) toRecord() (attendance.AttendanceRecord, error) {
	rec := attendance.AttendanceRecord{ID: d.ID, EmployeeID: d.EmployeeID, Date: d.Date}
	var err error
	if rec.CheckIn, err = parseTime(d.CheckIn); err != nil {
		return rec, fmt.Errorf("record %s check_in: %w", d.ID, err)
	}
	if rec.CheckOut, err = parseTime(d.CheckOut); err != nil {
		return rec, fmt.Errorf("record %s check_out: %w", d.ID, err)
	}
	return rec, nil
}

func (d employeeDoc) toProfile() (attendance.EmployeeProfile, error) {
	rate, err := decimal.NewFromString(d.HourlyRate)
	if err != nil {
		return attendance.EmployeeProfile{}, fmt.Errorf("employee %s hourly_rate: %w", d.ID, err)
	}
	p := attendance.EmployeeProfile{ID: d.ID, Name: d.Name, HourlyRate: rate}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	return p, nil
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

func (s *Store) Get(ctx context.Context, employeeID, date string) (*attendance.AttendanceRecord, error) {
	return s.findOne(ctx, bson.M{"employee_id": employeeID, "date": date})
}

func (s *Store) Latest(ctx context.Context, employeeID string) (*attendance.AttendanceRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}})
	return s.findOne(ctx, bson.M{"employee_id": employeeID}, opts)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*attendance.AttendanceRecord, error) {
	var doc recordDoc
	err := s.attendance.FindOne(ctx, filter, opts...).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	rec, err := doc.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Put(ctx context.Context, rec attendance.AttendanceRecord) error {
	if rec.ID != attendance.RecordID(rec.EmployeeID, rec.Date) {
		return attendance.ErrInvalidRecord
	}

	switch rec.State() {
	case attendance.StateCheckedIn:
		_, err := s.attendance.InsertOne(ctx, recordDoc{
			ID:         rec.ID,
			EmployeeID: rec.EmployeeID,
			Date:       rec.Date,
			CheckIn:    formatTime(*rec.CheckIn),
		})
		if mongo.IsDuplicateKeyError(err) {
			return attendance.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("insert attendance: %w", err)
		}
		return nil

	case attendance.StateComplete:
		if !rec.CheckOut.After(*rec.CheckIn) {
			return attendance.ErrCheckOutNotAfterCheckIn
		}
		res, err := s.attendance.UpdateOne(ctx,
			bson.M{
				"_id":       rec.ID,
				"check_in":  formatTime(*rec.CheckIn),
				"check_out": bson.M{"$exists": false},
			},
			bson.M{"$set": bson.M{"check_out": formatTime(*rec.CheckOut)}},
		)
		if err != nil {
			return fmt.Errorf("update attendance: %w", err)
		}
		if res.MatchedCount == 0 {
			return attendance.ErrConcurrentModification
		}
		return nil

	default:
		return attendance.ErrInvalidRecord
	}
}

func (s *Store) ListAll(ctx context.Context) ([]attendance.AttendanceRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "employee_id", Value: 1}})
	cursor, err := s.attendance.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}

	records := make([]attendance.AttendanceRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp attendance.EmployeeProfile) error {
	if err := attendance.ValidateProfile(emp); err != nil {
		return err
	}
	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.employees.InsertOne(ctx, employeeDoc{
		ID:         emp.ID,
		Name:       emp.Name,
		HourlyRate: emp.HourlyRate.String(),
		CreatedAt:  formatTime(createdAt),
	})
	if mongo.IsDuplicateKeyError(err) {
		return attendance.ErrEmployeeExists
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*attendance.EmployeeProfile, error) {
	var doc employeeDoc
	err := s.employees.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	p, err := doc.toProfile()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]attendance.EmployeeProfile, error) {
	cursor, err := s.employees.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	var docs []employeeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}

	out := make([]attendance.EmployeeProfile, 0, len(docs))
	for _, d := range docs {
		p, err := d.toProfile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e attendance.AuditEntry) error {
	_, err := s.audit.InsertOne(ctx, auditDoc{
		ID:         e.ID,
		Seq:        time.Now().UnixNano(),
		At:         formatTime(e.At),
		EmployeeID: e.EmployeeID,
		Event:      string(e.Event),
		Date:       e.Date,
		Outcome:    e.Outcome,
		Detail:     e.Detail,
	})
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, filter attendance.AuditFilter) ([]attendance.AuditEntry, error) {
	query := bson.M{}
	if filter.EmployeeID != "" {
		query["employee_id"] = filter.EmployeeID
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.audit.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	var docs []auditDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	out := make([]attendance.AuditEntry, 0, len(docs))
	for _, d := range docs {
		at, _ := time.Parse(time.RFC3339Nano, d.At)
		out = append(out, attendance.AuditEntry{
			ID:         d.ID,
			At:         at,
			EmployeeID: d.EmployeeID,
			Event:      attendance.EventType(d.Event),
			Date:       d.Date,
			Outcome:    d.Outcome,
			Detail:     d.Detail,
		})
	}
	return out, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.attendance, s.employees, s.audit} {
		if _, err := c.DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("clear %s: %w", c.Name(), err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

