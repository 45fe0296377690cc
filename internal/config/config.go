package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single ICS subscription source.
type CalendarConfig struct {
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// Color is the background color for this calendar's events,
	// "#RGB" or "#RRGGBB".
	Color string `yaml:"color" json:"color"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA display timezone (e.g. "Europe/Berlin").
	// An unresolvable zone is fatal at startup; we never guess.
	Timezone string `yaml:"timezone" json:"timezone"`

	// View is the calendar view name: timeGridDay, timeGridWeek,
	// dayGridMonth, listDay, listWeek, listMonth or listYear.
	View string `yaml:"view" json:"view"`

	// WeekStartDay is the first day of the week, ISO numbering
	// (1=Monday ... 7=Sunday).
	WeekStartDay int `yaml:"week_start_day" json:"week_start_day"`

	// IncludeLeadingDays pulls the week view back to the most recent
	// week start instead of starting at today.
	IncludeLeadingDays bool `yaml:"include_leading_days" json:"include_leading_days"`

	// SkipCompleted hides events that already ended.
	SkipCompleted bool `yaml:"skip_completed" json:"skip_completed"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// periodic preview refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir is the base directory for the ICS fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// PreviewPath is where the rendered calendar PNG is written.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Calendars is the list of subscribed ICS sources.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "America/New_York",
		View:         "timeGridWeek",
		WeekStartDay: 1,
		RefreshCron:  "*/15 * * * *",
		CacheDir:     "/var/lib/inkcal/ics-cache",
		PreviewPath:  "/var/lib/inkcal/preview.png",
		LogLevel:     "info",
		Calendars:    []CalendarConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. It does not validate
// the view name or timezone; those are checked at startup where a bad
// value must be fatal rather than silently replaced.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.View == "" {
		c.View = "timeGridWeek"
	}
	if c.WeekStartDay < 1 || c.WeekStartDay > 7 {
		c.WeekStartDay = 1
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "/var/lib/inkcal/ics-cache"
	}
	if c.PreviewPath == "" {
		c.PreviewPath = "/var/lib/inkcal/preview.png"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		if c.Calendars[i].Color == "" {
			c.Calendars[i].Color = "#395b64"
		}
		if c.Calendars[i].ID == "" {
			c.Calendars[i].ID = c.Calendars[i].URL
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms and return it.
//   - If the file exists: read YAML, unmarshal and normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".inkcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
