package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrStateNotFound is returned when state.json is missing.
var ErrStateNotFound = errors.New("artifact state not found")

// InstalledFile records one file fetched into the model directory.
type InstalledFile struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	InstalledAt time.Time `json:"installed_at"`
}

// State is the install record kept in <dir>/state.json.
type State struct {
	Files     []InstalledFile `json:"files"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s State) lookup(path string) (InstalledFile, bool) {
	path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(strings.TrimSpace(path))))
	for _, f := range s.Files {
		if f.Path == path {
			return f, true
		}
	}
	return InstalledFile{}, false
}

func (s *State) record(f InstalledFile) {
	for i := range s.Files {
		if s.Files[i].Path == f.Path {
			s.Files[i] = f
			return
		}
	}
	s.Files = append(s.Files, f)
}

func stateFilePath(dir string) string {
	return filepath.Join(dir, "state.json")
}

// LoadState reads <dir>/state.json.
func LoadState(dir string) (State, error) {
	data, err := os.ReadFile(stateFilePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("read artifact state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode artifact state: %w", err)
	}
	return state, nil
}

// SaveState writes <dir>/state.json atomically.
func SaveState(dir string, state State) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("artifact dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact state: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "state.json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), stateFilePath(dir)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
