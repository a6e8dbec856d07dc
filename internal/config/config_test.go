package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Port != "8080" || c.DBPath != "famboard.db" || c.RefreshCron != "*/5 * * * *" {
		t.Errorf("defaults = %+v", c)
	}
	g := c.Grid()
	if g.DayStartHour != 6 || g.DayEndHour != 21 || g.HourHeightPx != 60 {
		t.Errorf("grid = %+v", g)
	}
	if c.Google.RedirectURL != "http://localhost:8080/accounts/google/callback" {
		t.Errorf("redirect = %s", c.Google.RedirectURL)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famboard.yaml")
	yaml := `
port: "9000"
timezone: America/Chicago
day_start_hour: 7
day_end_hour: 20
week_start: Monday
google:
  client_id: file-id
  client_secret: file-secret
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAMBOARD_PORT", "9100")
	t.Setenv("FAMBOARD_HOUR_HEIGHT_PX", "48")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "9100" {
		t.Errorf("port = %s, want env override", c.Port)
	}
	if c.DayStartHour != 7 || c.DayEndHour != 20 || c.HourHeightPx != 48 {
		t.Errorf("grid = %+v", c.Grid())
	}
	if wd, _ := c.WeekStartDay(); wd != time.Monday {
		t.Errorf("week start = %v", wd)
	}
	if !c.GoogleEnabled() || c.BasicAuthEnabled() {
		t.Errorf("google=%v basic=%v", c.GoogleEnabled(), c.BasicAuthEnabled())
	}
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultView != "week" {
		t.Errorf("default view = %s", c.DefaultView)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"end before start", func(c *Config) { c.DayStartHour, c.DayEndHour = 10, 9 }},
		{"hours past midnight", func(c *Config) { c.DayEndHour = 25 }},
		{"zero height", func(c *Config) { c.HourHeightPx = -1 }},
		{"bad view", func(c *Config) { c.DefaultView = "year" }},
		{"bad week start", func(c *Config) { c.WeekStart = "friday" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"half basic auth", func(c *Config) { c.BasicAuth.Username = "admin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mod(c)
			if err := c.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBadEnvNumber(t *testing.T) {
	t.Setenv("FAMBOARD_DAY_START_HOUR", "six")
	if _, err := Load(""); err == nil {
		t.Error("expected an error for a non-numeric hour")
	}
}

func TestApplySettings(t *testing.T) {
	cfg := Default()
	err := cfg.ApplySettings(map[string]string{
		"default_view":   "month",
		"day_start_hour": "7",
		"secret":         "ignored",
	})
	if err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	if cfg.DefaultView != "month" || cfg.DayStartHour != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Secret != "" {
		t.Error("secret must not be settable from stored settings")
	}
}

func TestApplySettingsInvalidLeavesConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplySettings(map[string]string{"day_start_hour": "22"}); err == nil {
		t.Fatal("expected validation error")
	}
	if cfg.DayStartHour != 6 {
		t.Errorf("DayStartHour = %d, want unchanged 6", cfg.DayStartHour)
	}
}
