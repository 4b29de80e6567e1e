package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/musher-dev/tether/internal/paths"
)

const (
	stateFileName = "update-check.json"
	checkInterval = 24 * time.Hour
)

// State caches the last release check so commands can mention a newer
// build without hitting the network every run.
type State struct {
	LastCheckedAt  time.Time `json:"lastCheckedAt"`
	LatestVersion  string    `json:"latestVersion,omitempty"`
	CurrentVersion string    `json:"currentVersion,omitempty"`
	ReleaseURL     string    `json:"releaseURL,omitempty"`
}

// StateFile returns where the check cache lives.
func StateFile() (string, error) {
	root, err := paths.StateRoot()
	if err != nil {
		return "", fmt.Errorf("resolve update state path: %w", err)
	}

	return filepath.Join(root, stateFileName), nil
}

// LoadState reads the cache. A missing or corrupt file yields an empty
// state.
func LoadState() (*State, error) {
	path, err := StateFile()
	if err != nil {
		return &State{}, nil //nolint:nilerr // no state dir means nothing cached
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path under the state root
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}

		return nil, fmt.Errorf("read update state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{}, nil //nolint:nilerr // corrupt cache is rebuilt on the next check
	}

	return &state, nil
}

// SaveState writes the cache through a temp file and rename so concurrent
// runs never see a partial file.
func SaveState(state *State) error {
	path, err := StateFile()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create update state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal update state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, stateFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp update state: %w", err)
	}

	name := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write update state: %w", firstErr(writeErr, closeErr))
	}

	// Windows refuses to rename over an existing file.
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(path)

		if err := os.Rename(name, path); err != nil {
			_ = os.Remove(name)
			return fmt.Errorf("replace update state: %w", err)
		}
	}

	return nil
}

// Record stores the outcome of a release check made now.
func Record(info *Info) error {
	return SaveState(&State{
		LastCheckedAt:  time.Now(),
		LatestVersion:  info.LatestVersion,
		CurrentVersion: info.CurrentVersion,
		ReleaseURL:     info.ReleaseURL,
	})
}

// ShouldCheck reports whether the cache is older than a day.
func (s *State) ShouldCheck() bool {
	return s.LastCheckedAt.IsZero() || time.Since(s.LastCheckedAt) >= checkInterval
}

// HasUpdate reports whether the cached release is newer than
// currentVersion.
func (s *State) HasUpdate(currentVersion string) bool {
	return newer(s.LatestVersion, currentVersion)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
