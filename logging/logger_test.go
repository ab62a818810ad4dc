package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid json config",
			config: Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:   "valid text config",
			config: Config{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name:   "upper case level",
			config: Config{Level: "WARN"},
		},
		{
			name:    "invalid level",
			config:  Config{Level: "trace", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "info", Format: "xml", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "unwritable file",
			config:  Config{Output: filepath.Join(os.DevNull, "nope", "ntexporter.log")},
			wantErr: true,
		},
		{
			name:   "defaults applied",
			config: Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestFileOutputAndComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ntexporter.log")
	logger, err := New(Config{Level: "debug", Output: path})
	require.NoError(t, err)

	logger.Component("saver").Warn("snapshot save failed", "filename", "/tmp/x.prom")
	logger.Debug("debug line")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "saver", rec[ComponentKey])
	assert.Equal(t, "/tmp/x.prom", rec["filename"])
	assert.NotEmpty(t, rec["time"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"DEBUG", slog.LevelDebug, false},
		{"invalid", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	config := Config{}
	config.setDefaults()

	assert.Equal(t, "info", config.Level)
	assert.Equal(t, "json", config.Format)
	assert.Equal(t, "stdout", config.Output)
}
