package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/recording"
)

func recordSession(t *testing.T, dir, id string, chunks ...string) {
	t.Helper()

	rec, err := recording.NewRecorder(recording.Options{SessionID: id, Dir: dir, Source: "shell"})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := rec.RecordResize(80, 24); err != nil {
		t.Fatal(err)
	}

	for _, c := range chunks {
		if err := rec.RecordData([]byte(c)); err != nil {
			t.Fatal(err)
		}
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func recordingsEnv(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(isolateEnv(t), "recordings")
	t.Setenv("TETHER_RECORDING_DIR", dir)

	return dir
}

func TestHistoryListEmpty(t *testing.T) {
	recordingsEnv(t)

	out, buf := testWriter()
	if err := execute(t, newHistoryListCmd(), out); err != nil {
		t.Fatalf("history list: %v", err)
	}

	if got := buf.String(); got != "No recorded sessions found.\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestHistoryListJSON(t *testing.T) {
	dir := recordingsEnv(t)
	recordSession(t, dir, "s1", "hi\n")

	out, buf := testWriter()
	out.JSON = true

	if err := execute(t, newHistoryListCmd(), out); err != nil {
		t.Fatalf("history list: %v", err)
	}

	var sessions []recording.Session
	if err := json.Unmarshal(buf.Bytes(), &sessions); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}

	if len(sessions) != 1 || sessions[0].SessionID != "s1" || sessions[0].Source != "shell" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestHistoryListTable(t *testing.T) {
	dir := recordingsEnv(t)
	recordSession(t, dir, "s1", "hi\n")

	out, buf := testWriter()
	if err := execute(t, newHistoryListCmd(), out); err != nil {
		t.Fatalf("history list: %v", err)
	}

	for _, want := range []string{"ID", "SOURCE", "s1", "shell"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table %q missing %q", buf.String(), want)
		}
	}
}

func TestHistoryViewStripsEscapes(t *testing.T) {
	dir := recordingsEnv(t)
	recordSession(t, dir, "s1", "\x1b[32mgreen\x1b[0m li", "ne\r\nsecond\r\n", "partial")

	out, buf := testWriter()
	if err := execute(t, newHistoryViewCmd(), out, "s1"); err != nil {
		t.Fatalf("history view: %v", err)
	}

	want := "green line\nsecond\npartial\n"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestHistoryViewSearchAndRaw(t *testing.T) {
	dir := recordingsEnv(t)
	recordSession(t, dir, "s1", "alpha\n\x1b[1mERROR\x1b[0m beta\ngamma\n")

	out, buf := testWriter()
	if err := execute(t, newHistoryViewCmd(), out, "s1", "--search", "error", "--raw"); err != nil {
		t.Fatalf("history view: %v", err)
	}

	if got := buf.String(); got != "\x1b[1mERROR\x1b[0m beta\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestHistoryViewUnknownSession(t *testing.T) {
	recordingsEnv(t)

	out, _ := testWriter()
	err := execute(t, newHistoryViewCmd(), out, "missing")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("err = %v, want RecordingNotFound", err)
	}
}

func TestHistoryPrune(t *testing.T) {
	dir := recordingsEnv(t)
	recordSession(t, dir, "s1", "x")

	out, buf := testWriter()
	if err := execute(t, newHistoryPruneCmd(), out, "--older-than", "1h"); err != nil {
		t.Fatalf("history prune: %v", err)
	}

	if got := buf.String(); got != "✓ Removed 0 recording(s)\n" {
		t.Fatalf("output = %q", got)
	}

	out, buf = testWriter()
	if err := execute(t, newHistoryPruneCmd(), out, "--older-than=-1h"); err != nil {
		t.Fatalf("history prune: %v", err)
	}

	if got := buf.String(); got != "✓ Removed 1 recording(s)\n" {
		t.Fatalf("output = %q", got)
	}
}
