package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite  = "sqlite"
	DriverMemory  = "memory"
	DriverMongoDB = "mongodb"
)

type Config struct {
	App        AppConfig
	Store      StoreConfig
	Attendance AttendanceConfig
	Export     ExportConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	CORSOrigins []string
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Driver        string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

type AttendanceConfig struct {
	// Location decides which calendar day a check-in belongs to.
	Location             *time.Location
	RecognitionThreshold float64
}

// ExportConfig controls the periodic CSV export. Empty Dir disables it.
type ExportConfig struct {
	Dir      string
	Interval time.Duration
}

// Load reads the environment, after applying any .env files. With no
// arguments it looks for ./.env and carries on without one. Load only
// parses; call Validate once every override has been applied.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	config.App = AppConfig{
		Port:        appPort,
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}

	config.Store = StoreConfig{
		Driver:        strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:    getEnv("SQLITE_PATH", "attendance.db"),
		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "attendance"),
	}

	loc, err := loadLocation(getEnv("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	threshold, err := strconv.ParseFloat(getEnv("RECOGNITION_THRESHOLD", "0.85"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECOGNITION_THRESHOLD: %w", err)
	}
	config.Attendance = AttendanceConfig{
		Location:             loc,
		RecognitionThreshold: threshold,
	}

	interval, err := time.ParseDuration(getEnv("EXPORT_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPORT_INTERVAL: %w", err)
	}
	config.Export = ExportConfig{
		Dir:      getEnv("EXPORT_DIR", ""),
		Interval: interval,
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	case DriverMongoDB:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongodb driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	if t := c.Attendance.RecognitionThreshold; !(t > 0 && t <= 1) {
		return fmt.Errorf("RECOGNITION_THRESHOLD must be in (0, 1], got %v", c.Attendance.RecognitionThreshold)
	}
	if c.Export.Dir != "" && c.Export.Interval <= 0 {
		return fmt.Errorf("EXPORT_INTERVAL must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsProduction reports APP_ENV=production. Demo-only surfaces are off there.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
