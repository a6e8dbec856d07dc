// Package config loads famboard's settings from an optional YAML file and
// FAMBOARD_* environment variables. The environment wins.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/famboard/internal/timegrid"
)

const envPrefix = "FAMBOARD_"

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// RedirectURL defaults to <public_url>/accounts/google/callback.
	RedirectURL string `yaml:"redirect_url"`
}

// BasicAuthConfig enables HTTP Basic Auth on everything except /health.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Port      string `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Timezone  string `yaml:"timezone"`
	// Secret encrypts account tokens at rest.
	Secret string `yaml:"secret"`

	RefreshCron string `yaml:"refresh_cron"`

	DayStartHour int     `yaml:"day_start_hour"`
	DayEndHour   int     `yaml:"day_end_hour"`
	HourHeightPx float64 `yaml:"hour_height_px"`
	DefaultView  string  `yaml:"default_view"`
	WeekStart    string  `yaml:"week_start"`

	Google    GoogleConfig    `yaml:"google"`
	BasicAuth BasicAuthConfig `yaml:"basic_auth"`
}

func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:" + c.Port
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.DBPath == "" {
		c.DBPath = "famboard.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/5 * * * *"
	}
	if c.DayStartHour == 0 && c.DayEndHour == 0 {
		c.DayStartHour, c.DayEndHour = 6, 21
	}
	if c.HourHeightPx == 0 {
		c.HourHeightPx = 60
	}
	if c.DefaultView == "" {
		c.DefaultView = string(timegrid.ModeWeek)
	}
	c.WeekStart = strings.ToLower(c.WeekStart)
	if c.WeekStart == "" {
		c.WeekStart = "sunday"
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = c.PublicURL + "/accounts/google/callback"
	}
}

// Load reads path if it exists, applies defaults and then environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"PORT":                 &c.Port,
		"PUBLIC_URL":           &c.PublicURL,
		"DB_PATH":              &c.DBPath,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
		"TIMEZONE":             &c.Timezone,
		"SECRET":               &c.Secret,
		"REFRESH_CRON":         &c.RefreshCron,
		"DEFAULT_VIEW":         &c.DefaultView,
		"WEEK_START":           &c.WeekStart,
		"GOOGLE_CLIENT_ID":     &c.Google.ClientID,
		"GOOGLE_CLIENT_SECRET": &c.Google.ClientSecret,
		"GOOGLE_REDIRECT_URL":  &c.Google.RedirectURL,
		"BASIC_AUTH_USER":      &c.BasicAuth.Username,
		"BASIC_AUTH_PASSWORD":  &c.BasicAuth.Password,
	}
	for name, dst := range str {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DAY_START_HOUR": &c.DayStartHour,
		"DAY_END_HOUR":   &c.DayEndHour,
	}
	for name, dst := range ints {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := lookup(envPrefix + "HOUR_HEIGHT_PX"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sHOUR_HEIGHT_PX: %w", envPrefix, err)
		}
		c.HourHeightPx = f
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if _, err := timegrid.ParseViewMode(c.DefaultView); err != nil {
		return err
	}
	if _, err := c.WeekStartDay(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("basic auth needs both a username and a password")
	}
	return nil
}

func (c *Config) Grid() timegrid.Grid {
	return timegrid.Grid{DayStartHour: c.DayStartHour, DayEndHour: c.DayEndHour, HourHeightPx: c.HourHeightPx}
}

func (c *Config) View() timegrid.ViewMode {
	m, err := timegrid.ParseViewMode(c.DefaultView)
	if err != nil {
		return timegrid.ModeWeek
	}
	return m
}

func (c *Config) WeekStartDay() (time.Weekday, error) {
	switch c.WeekStart {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	}
	return time.Sunday, fmt.Errorf("week_start must be sunday or monday, got %q", c.WeekStart)
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// BasicAuthEnabled reports whether HTTP Basic Auth is configured.
func (c *Config) BasicAuthEnabled() bool {
	return c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// GoogleEnabled reports whether Google accounts can be linked.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// SettingKeys are the display settings the household may change at runtime.
// They are stored lower-cased without the environment prefix.
var SettingKeys = []string{"default_view", "week_start", "day_start_hour", "day_end_hour", "hour_height_px"}

// ApplySettings overlays stored display settings. Unknown keys are ignored.
// The receiver is left unchanged when the result does not validate.
func (c *Config) ApplySettings(settings map[string]string) error {
	allowed := make(map[string]string, len(SettingKeys))
	for _, k := range SettingKeys {
		if v, ok := settings[k]; ok {
			allowed[k] = v
		}
	}
	next := *c
	lookup := func(name string) (string, bool) {
		v, ok := allowed[strings.ToLower(strings.TrimPrefix(name, envPrefix))]
		return v, ok
	}
	if err := next.applyEnv(lookup); err != nil {
		return err
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
