// Package recording persists terminal session streams and plays them back.
//
// Each session gets a directory holding a compressed event log, a plain
// live log that survives crashes, and a metadata file used for listing and
// pruning.
package recording

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	defaultRetentionHours = 24 * 30
	eventsFileName        = "events.jsonl.gz"
	eventsLiveFileName    = "events.live.jsonl"
	metaFileName          = "meta.json"
)

// Kind identifies a recorded event.
type Kind string

const (
	// KindData is a chunk of output bytes.
	KindData Kind = "data"
	// KindResize is a terminal size change.
	KindResize Kind = "resize"
)

// Event is a single recorded record.
type Event struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	RawBase64 string    `json:"rawBase64,omitempty"`
	Cols      int       `json:"cols,omitempty"`
	Rows      int       `json:"rows,omitempty"`
}

// Bytes decodes the payload of a data event.
func (e *Event) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.RawBase64)
	if err != nil {
		return nil, fmt.Errorf("decode event %d payload: %w", e.Seq, err)
	}

	return data, nil
}

// Meta stores session metadata for discovery and pruning.
type Meta struct {
	SessionID string     `json:"sessionId"`
	Source    string     `json:"source,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Options controls where and how a session is recorded.
type Options struct {
	SessionID string
	Dir       string
	// Source describes what was recorded, e.g. "shell /bin/zsh".
	Source string
}

// Recorder writes events to compressed and live JSONL files.
type Recorder struct {
	mu sync.Mutex

	sessionID string
	source    string
	dir       string
	seq       uint64
	startedAt time.Time
	now       func() time.Time

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	closed bool
}

// NewRecorder creates the session directory and opens its logs.
func NewRecorder(opts Options) (*Recorder, error) {
	if err := validateSessionID(opts.SessionID); err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		var err error

		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	sessionDir := filepath.Join(dir, opts.SessionID)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(sessionDir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionDir/sessionID are validated
	if err != nil {
		return nil, fmt.Errorf("open recording events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(sessionDir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionDir/sessionID are validated
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live recording events: %w", err)
	}

	gz := gzip.NewWriter(f)

	r := &Recorder{
		sessionID: opts.SessionID,
		source:    opts.Source,
		dir:       sessionDir,
		startedAt: time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
		file:      f,
		gz:        gz,
		bw:        bufio.NewWriterSize(gz, 64*1024),
		liveFile:  liveFile,
		liveBW:    bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := r.writeMeta(nil); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// SessionID returns the recorded session id.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordData appends an output chunk. Empty chunks are skipped.
func (r *Recorder) RecordData(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	return r.append(Event{Kind: KindData, RawBase64: base64.StdEncoding.EncodeToString(p)})
}

// RecordResize appends a size change.
func (r *Recorder) RecordResize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid recorded size %dx%d", cols, rows)
	}

	return r.append(Event{Kind: KindResize, Cols: cols, Rows: rows})
}

func (r *Recorder) append(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("recording is closed")
	}

	r.seq++
	ev.SessionID = r.sessionID
	ev.Seq = r.seq
	ev.TS = r.now()

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal recording event: %w", err)
	}

	line = append(line, '\n')
	if _, err := r.bw.Write(line); err != nil {
		return fmt.Errorf("encode recording event: %w", err)
	}

	if _, err := r.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live recording event: %w", err)
	}

	if err := r.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live recording event: %w", err)
	}

	return nil
}

func (r *Recorder) writeMeta(closedAt *time.Time) error {
	data, err := json.Marshal(&Meta{
		SessionID: r.sessionID,
		Source:    r.source,
		StartedAt: r.startedAt,
		ClosedAt:  closedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal recording meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write recording meta: %w", err)
	}

	return nil
}

// Close flushes the logs and stamps the close time. Safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	now := time.Now().UTC()

	var errs []error
	if err := r.writeMeta(&now); err != nil {
		errs = append(errs, err)
	}

	if r.bw != nil {
		if err := r.bw.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.liveBW != nil {
		if err := r.liveBW.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.liveFile != nil {
		if err := r.liveFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if sessionID != filepath.Base(sessionID) || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return errors.New("invalid session id")
	}

	return nil
}
