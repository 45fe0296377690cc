package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "timeGridWeek", cfg.View)
	assert.Equal(t, 1, cfg.WeekStartDay)

	// The default file is written with restrictive permissions; feed
	// URLs can embed secrets.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: "0.0.0.0:9090"
timezone: "Europe/Berlin"
view: dayGridMonth
week_start_day: 7
skip_completed: true
calendars:
  - id: personal
    url: https://example.com/personal.ics
    color: "#336699"
  - url: https://example.com/work.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "dayGridMonth", cfg.View)
	assert.Equal(t, 7, cfg.WeekStartDay)
	assert.True(t, cfg.SkipCompleted)

	require.Len(t, cfg.Calendars, 2)
	assert.Equal(t, "personal", cfg.Calendars[0].ID)
	assert.Equal(t, "#336699", cfg.Calendars[0].Color)
	// Missing calendar fields are normalized.
	assert.Equal(t, "https://example.com/work.ics", cfg.Calendars[1].ID)
	assert.NotEmpty(t, cfg.Calendars[1].Color)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{WeekStartDay: 42}
	cfg.Normalize()

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.NotEmpty(t, cfg.Timezone)
	assert.Equal(t, "timeGridWeek", cfg.View)
	assert.Equal(t, 1, cfg.WeekStartDay)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	assert.NotEmpty(t, cfg.CacheDir)
	assert.NotEmpty(t, cfg.PreviewPath)
	assert.NotNil(t, cfg.Calendars)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.View = "listWeek"
	cfg.Calendars = []CalendarConfig{{ID: "a", URL: "https://example.com/a.ics", Color: "#ff0000"}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "listWeek", loaded.View)
	require.Len(t, loaded.Calendars, 1)
	assert.Equal(t, "a", loaded.Calendars[0].ID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
