package recording

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/musher-dev/tether/internal/paths"
)

// Session describes one stored recording.
type Session struct {
	SessionID string     `json:"sessionId"`
	Source    string     `json:"source,omitempty"`
	Path      string     `json:"path"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// DefaultDir returns the default recordings directory.
func DefaultDir() (string, error) {
	dir, err := paths.RecordingsDir()
	if err != nil {
		return "", fmt.Errorf("resolve recordings directory: %w", err)
	}

	return dir, nil
}

// DefaultRetention returns the default prune window.
func DefaultRetention() time.Duration {
	return defaultRetentionHours * time.Hour
}

func resolveDir(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve recordings root directory: %w", err)
	}

	return dir, nil
}

// ListSessions returns recordings sorted by newest start time first.
func ListSessions(rootDir string) ([]Session, error) {
	rootDir, err := resolveDir(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list recordings: %w", err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
		if err != nil {
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		sessions = append(sessions, Session{
			SessionID: meta.SessionID,
			Source:    meta.Source,
			Path:      dir,
			StartedAt: meta.StartedAt,
			ClosedAt:  meta.ClosedAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// ErrNotFound is returned by ReadEvents when a session has no logs.
var ErrNotFound = errors.New("recording not found")

// ReadEvents reads all events of a session in sequence order. A session
// whose compressed log is missing or was never finalized is recovered from
// its live log.
func ReadEvents(rootDir, sessionID string) (events []Event, err error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	rootDir, err = resolveDir(rootDir)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(rootDir, sessionID, eventsFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return readLiveEvents(rootDir, sessionID)
		}

		return nil, fmt.Errorf("open recording events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		// An empty or truncated archive means the recorder never closed.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return readLiveEvents(rootDir, sessionID)
		}

		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		if closeErr := gzipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	events, err = scanEvents(gzipReader)
	if err != nil {
		return nil, err
	}

	return events, nil
}

func readLiveEvents(rootDir, sessionID string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(rootDir, sessionID, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}

		return nil, fmt.Errorf("open live recording events for recovery: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(file)
}

func scanEvents(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var events []Event

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("scan recording events: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })

	return events, nil
}

// PruneOlderThan removes recordings that closed (or started, if still
// open) before cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		referenceTime := session.StartedAt
		if session.ClosedAt != nil {
			referenceTime = *session.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			if err := os.RemoveAll(session.Path); err != nil {
				return removed, fmt.Errorf("prune recording %q: %w", session.SessionID, err)
			}

			removed++
		}
	}

	return removed, nil
}
