package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pcos")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != 9090 {
		t.Fatalf("want PORT fallback 9090, got %d", cfg.APIPort)
	}
	if cfg.ReminderCron != "0 * * * *" {
		t.Fatalf("unexpected reminder cron %q", cfg.ReminderCron)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("want 1m rate limit window, got %s", cfg.RateLimitWindow)
	}
	if len(cfg.CORSAllowOrigins) != 2 {
		t.Fatalf("want 2 default origins, got %v", cfg.CORSAllowOrigins)
	}
	if cfg.IsProduction() {
		t.Fatal("want development by default")
	}
}

func TestLoadAPIPortWinsOverPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pcos")
	t.Setenv("PORT", "9090")
	t.Setenv("API_PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != 7000 {
		t.Fatalf("want API_PORT 7000, got %d", cfg.APIPort)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	if _, err := Load(); err == nil {
		t.Fatal("want error without DATABASE_URL")
	}
}

func TestLoadRulesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := `
prediction:
  pms_offset_days: 7
quiet_hours_policy: legacy
reminders:
  cycle_lead_days: [2]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.Prediction.PMSOffsetDays != 7 {
		t.Fatalf("want pms offset 7, got %d", rules.Prediction.PMSOffsetDays)
	}
	if rules.Prediction.TrendWindow != 3 {
		t.Fatalf("want default trend window kept, got %d", rules.Prediction.TrendWindow)
	}
	if rules.QuietHoursPolicy != eligibility.PolicyLegacy {
		t.Fatalf("want legacy policy, got %s", rules.QuietHoursPolicy)
	}
	if len(rules.Reminders.CycleLeadDays) != 1 || rules.Reminders.CycleLeadDays[0] != 2 {
		t.Fatalf("want lead days [2], got %v", rules.Reminders.CycleLeadDays)
	}
	if !rules.Reminders.DailyLog {
		t.Fatal("want daily log default kept")
	}
}

func TestLoadRulesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad policy":   "quiet_hours_policy: sometimes\n",
		"bad trend":    "prediction:\n  trend_window: 1\n",
		"bad lead day": "reminders:\n  cycle_lead_days: [-2]\n",
		"not yaml":     "prediction: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadRules(path); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.QuietHoursPolicy != eligibility.PolicyOvernightSafe {
		t.Fatalf("want overnight_safe default, got %s", rules.QuietHoursPolicy)
	}
}
