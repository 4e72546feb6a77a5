/*
Package recognition is the boundary between camera captures and attendance
events.

PURPOSE:
  A Recognizer turns a captured image into an employee id and a confidence.
  The Gate decides whether that match is good enough to act on. Only a
  gated match reaches attendance.Machine.Apply.

FLOW (POST /api/attendance/recognize):
  DecodeImage(capture) -> Recognizer.Recognize -> Gate.Check
    -> unknown-employee check -> Machine.Apply

  A nil match, a confidence outside [0,1] and a confidence at or below the
  threshold are all refusals. None of them touch the store.

ENROLLMENT:
  Registration needs MinReferenceImages..MaxReferenceImages captures.
  They are handed to the recognizer when it implements Enroller and are
  never persisted with the profile.

SEE ALSO:
  - recognition/mock.go: Random-match recognizer for demos and tests
  - api/handlers.go: Wires the flow above
*/
package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrRecognitionFailed   = errors.New("face not recognized")
	ErrInvalidConfidence   = errors.New("confidence must be between 0 and 1")
	ErrBelowThreshold      = errors.New("confidence below threshold")
	ErrInvalidImage        = errors.New("invalid image data")
	ErrNotEnoughReferences = errors.New("not enough reference images")
	ErrTooManyReferences   = errors.New("too many reference images")
)

// IsRecognitionError reports whether err is a refusal of the capture itself
// rather than an infrastructure failure.
func IsRecognitionError(err error) bool {
	return errors.Is(err, ErrRecognitionFailed) ||
		errors.Is(err, ErrInvalidConfidence) ||
		errors.Is(err, ErrBelowThreshold)
}

// =============================================================================
// RECOGNIZER
// =============================================================================

// Match is a recognizer's best guess for a capture.
type Match struct {
	EmployeeID string  `json:"employee_id"`
	Confidence float64 `json:"confidence"`
}

// Recognizer identifies the employee in an image. A nil match with a nil
// error means nobody was recognized.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*Match, error)
}

// Enroller is implemented by recognizers that learn from reference images.
type Enroller interface {
	Enroll(ctx context.Context, employeeID string, images [][]byte) error
}

const (
	MinReferenceImages = 3
	MaxReferenceImages = 10
)

// CheckReferences validates the number of reference images for a
// registration.
func CheckReferences(images [][]byte) error {
	switch {
	case len(images) < MinReferenceImages:
		return fmt.Errorf("%w: got %d, need at least %d", ErrNotEnoughReferences, len(images), MinReferenceImages)
	case len(images) > MaxReferenceImages:
		return fmt.Errorf("%w: got %d, at most %d", ErrTooManyReferences, len(images), MaxReferenceImages)
	}
	return nil
}

// =============================================================================
// GATE
// =============================================================================

const DefaultThreshold = 0.85

// Gate accepts matches whose confidence is strictly above Threshold.
type Gate struct {
	Threshold float64
}

func NewGate(threshold float64) Gate {
	if !(threshold > 0 && threshold <= 1) {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// Check returns the employee id of an acceptable match.
func (g Gate) Check(m *Match) (string, error) {
	if m == nil || m.EmployeeID == "" {
		return "", ErrRecognitionFailed
	}
	// Written positively so NaN fails it.
	if !(m.Confidence >= 0 && m.Confidence <= 1) {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfidence, m.Confidence)
	}
	if m.Confidence <= g.Threshold {
		return "", fmt.Errorf("%w: %.3f <= %.3f", ErrBelowThreshold, m.Confidence, g.Threshold)
	}
	return m.EmployeeID, nil
}

// =============================================================================
// IMAGE DECODING
// =============================================================================

// DecodeImage accepts a browser capture ("data:image/jpeg;base64,....") or
// bare base64 and returns the raw image bytes.
func DecodeImage(capture string) ([]byte, error) {
	payload := strings.TrimSpace(capture)
	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: expected a base64 data URL", ErrInvalidImage)
		}
		payload = data
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImage)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some capture libraries drop the padding.
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	return raw, nil
}

// DecodeImages decodes every capture, failing on the first bad one.
func DecodeImages(captures []string) ([][]byte, error) {
	out := make([][]byte, 0, len(captures))
	for i, c := range captures {
		raw, err := DecodeImage(c)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}
