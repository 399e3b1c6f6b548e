package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaskField(t *testing.T) {
	if got := MaskField("token", "abc"); got.Value.String() != RedactedValue {
		t.Fatalf("expected token masked, got %q", got.Value.String())
	}
	if got := MaskField("Authorization", ""); got.Value.String() != "" {
		t.Fatalf("expected empty value untouched, got %q", got.Value.String())
	}
	if got := MaskField("account", "0x01"); got.Value.String() != "0x01" {
		t.Fatalf("expected account unmasked, got %q", got.Value.String())
	}
	keys := SensitiveKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestSetupWritesRotatedFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	path := filepath.Join(t.TempDir(), "stakepool.log")
	logger := Setup("stakepoold", "test", Options{File: path, MaxSizeMB: 1, Level: "debug"})
	logger.Debug("ledger opened", slog.String("secret", "hunter2"), slog.String("backend", "bolt"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"message":"ledger opened"`, `"severity":"DEBUG"`, `"service":"stakepoold"`, `"env":"test"`, `"backend":"bolt"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Contains(line, "hunter2") {
		t.Fatalf("secret leaked into log: %s", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
