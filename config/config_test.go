package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/config"
)

var keys = []string{
	"APP_PORT", "APP_ENV", "LOG_LEVEL", "CORS_ORIGINS",
	"STORE_DRIVER", "SQLITE_PATH", "MONGODB_URI", "MONGODB_DATABASE",
	"TIMEZONE", "RECOGNITION_THRESHOLD", "EXPORT_DIR", "EXPORT_INTERVAL",
}

// clearEnv blanks every key for the duration of the test. Empty values fall
// back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
	// Keep a stray ./.env from leaking in.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "attendance.db", cfg.Store.SQLitePath)
	assert.Equal(t, time.Local, cfg.Attendance.Location)
	assert.Equal(t, 0.85, cfg.Attendance.RecognitionThreshold)
	assert.Empty(t, cfg.Export.Dir)
	assert.Equal(t, time.Hour, cfg.Export.Interval)
	assert.Len(t, cfg.App.CORSOrigins, 2)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("RECOGNITION_THRESHOLD", "0.9")
	t.Setenv("EXPORT_DIR", "/tmp/exports")
	t.Setenv("EXPORT_INTERVAL", "15m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "UTC", cfg.Attendance.Location.String())
	assert.Equal(t, 0.9, cfg.Attendance.RecognitionThreshold)
	assert.Equal(t, "/tmp/exports", cfg.Export.Dir)
	assert.Equal(t, 15*time.Minute, cfg.Export.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.App.CORSOrigins)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even empty.
	for _, k := range []string{"APP_PORT", "STORE_DRIVER"} {
		require.NoError(t, os.Unsetenv(k))
	}
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=7070\nSTORE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("APP_PORT")
		os.Unsetenv("STORE_DRIVER")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestLoad_Unparseable(t *testing.T) {
	tests := []struct {
		name, key, value, msg string
	}{
		{"port not a number", "APP_PORT", "eighty", "APP_PORT"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus", "TIMEZONE"},
		{"threshold not a number", "RECOGNITION_THRESHOLD", "high", "RECOGNITION_THRESHOLD"},
		{"bad interval", "EXPORT_INTERVAL", "often", "EXPORT_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, msg string
	}{
		{"port out of range", "APP_PORT", "70000", "APP_PORT"},
		{"unknown driver", "STORE_DRIVER", "postgres", "STORE_DRIVER"},
		{"mongo without uri", "STORE_DRIVER", "mongodb", "MONGODB_URI"},
		{"threshold above one", "RECOGNITION_THRESHOLD", "1.5", "RECOGNITION_THRESHOLD"},
		{"threshold NaN", "RECOGNITION_THRESHOLD", "NaN", "RECOGNITION_THRESHOLD"},
		{"zero interval with export dir", "EXPORT_INTERVAL", "0s", "EXPORT_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			t.Setenv("EXPORT_DIR", t.TempDir())

			// Load parses; only Validate rejects.
			cfg, err := config.Load()
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	// GIVEN: an environment that selects mongodb without a URI
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mongodb")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	// WHEN: a command-line override switches to the memory store
	cfg.Store.Driver = config.DriverMemory

	// THEN
	assert.NoError(t, cfg.Validate())
}

func TestSlogLevel_Unknown(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{LogLevel: "chatty"}}
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&config.Config{App: config.AppConfig{Env: "production"}}).IsProduction())
	assert.False(t, (&config.Config{App: config.AppConfig{Env: "development"}}).IsProduction())
}
