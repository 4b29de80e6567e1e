package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_DefaultFileFallbackForInteractiveAuto(t *testing.T) {
	stateRoot := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateRoot)

	cfg := &Config{
		Level:          "info",
		Format:         "json",
		LogFile:        "",
		StderrMode:     "auto",
		InteractiveTTY: true,
		SessionID:      "session-test",
		CommandPath:    "tether shell",
		Version:        "test",
		Commit:         "abc123",
	}

	logger, cleanup, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("hello from test")

	if cleanup != nil {
		if closeErr := cleanup(); closeErr != nil {
			t.Fatalf("cleanup() error = %v", closeErr)
		}
	}

	logPath := filepath.Join(stateRoot, "tether", "logs", "tether.log")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile(%q) error = %v", logPath, err)
	}

	if len(data) == 0 {
		t.Fatalf("log file %q is empty", logPath)
	}
}

func TestRotateLogFile_RotatesAndKeepsBoundedBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "tether.log")

	// Existing rotated files
	if err := os.WriteFile(logPath+".1", []byte("one"), 0o600); err != nil {
		t.Fatalf("write .1: %v", err)
	}

	if err := os.WriteFile(logPath+".2", []byte("two"), 0o600); err != nil {
		t.Fatalf("write .2: %v", err)
	}

	if err := os.WriteFile(logPath+".3", []byte("three"), 0o600); err != nil {
		t.Fatalf("write .3: %v", err)
	}

	// Current log above threshold
	if err := os.WriteFile(logPath, []byte("1234567890"), 0o600); err != nil {
		t.Fatalf("write current: %v", err)
	}

	if err := rotateLogFile(logPath, 5, 3); err != nil {
		t.Fatalf("rotateLogFile() error = %v", err)
	}

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatalf("expected current log to be rotated away, stat err = %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Fatalf("expected .1 to exist, stat err = %v", err)
	}

	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Fatalf("expected .2 to exist, stat err = %v", err)
	}

	if _, err := os.Stat(logPath + ".3"); err != nil {
		t.Fatalf("expected .3 to exist, stat err = %v", err)
	}

	data3, err := os.ReadFile(logPath + ".3")
	if err != nil {
		t.Fatalf("read .3: %v", err)
	}

	if string(data3) != "two" {
		t.Fatalf("backup retention ordering wrong: .3 = %q, want %q", string(data3), "two")
	}
}

func TestNewLogger_NoSinksWhenNotInteractive(t *testing.T) {
	_, _, err := NewLogger(&Config{StderrMode: "off"})
	if err == nil {
		t.Fatal("NewLogger() succeeded without sinks")
	}
}

func TestNewLogger_RejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"level", Config{Level: "loud", StderrMode: "on"}},
		{"format", Config{Format: "xml", StderrMode: "on"}},
		{"stderr mode", Config{StderrMode: "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := NewLogger(&tt.cfg); err == nil {
				t.Errorf("NewLogger(%+v) succeeded, want error", tt.cfg)
			}
		})
	}
}

func TestNewLogger_RedactsSensitiveKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tether.log")

	logger, cleanup, err := NewLogger(&Config{Format: "json", StderrMode: "off", LogFile: logPath})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("dial", "auth_token", "s3cr3t", "tty.url", "ws://localhost")

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if strings.Contains(string(data), "s3cr3t") || !strings.Contains(string(data), redactedValue) {
		t.Errorf("log = %s, want the token redacted", data)
	}
}

func TestRotateLogFile_SmallFileUntouched(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tether.log")

	if err := os.WriteFile(logPath, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogFile(logPath, 5, 3); err != nil {
		t.Fatalf("rotateLogFile() error = %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Fatalf("small log was rotated, stat .1 err = %v", err)
	}

	if err := rotateLogFile(filepath.Join(t.TempDir(), "missing.log"), 5, 3); err != nil {
		t.Fatalf("rotateLogFile(missing) error = %v", err)
	}
}
