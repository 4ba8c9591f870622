package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
)

// unsetenv clears key for the test and restores it afterwards.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	t.Cleanup(func() { log = zap.NewNop() })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("pcosctl %v: %v", args, err)
	}
	return out.Bytes()
}

func TestEnvFileConfiguresLogger(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "ENVIRONMENT", "RULES_FILE"} {
		unsetenv(t, key)
	}
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("LOG_LEVEL=debug\nENVIRONMENT=test\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	execute(t, "--env-file", envFile, "eligible", "--type", "GENERAL")

	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("want debug logging from the env file")
	}
}

func TestEligibleLegacyFlag(t *testing.T) {
	unsetenv(t, "RULES_FILE")
	noEnv := filepath.Join(t.TempDir(), "missing.env")
	args := []string{"--env-file", noEnv, "eligible",
		"--type", "GENERAL", "--at", "2025-03-20T20:00:00Z", "--quiet", "09:00-17:00"}

	tests := []struct {
		name   string
		extra  []string
		reason eligibility.Reason
	}{
		{"overnight safe", nil, eligibility.ReasonAllowed},
		{"legacy", []string{"--legacy"}, eligibility.ReasonQuietHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := execute(t, append(append([]string{}, args...), tt.extra...)...)
			var d eligibility.Decision
			if err := json.Unmarshal(out, &d); err != nil {
				t.Fatalf("decode %s: %v", out, err)
			}
			if d.Reason != tt.reason {
				t.Fatalf("want %s, got %+v", tt.reason, d)
			}
		})
	}
}
