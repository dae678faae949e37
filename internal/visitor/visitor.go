// Package visitor persists the anonymous visitor identity between runs, the
// way the web widget keeps it in local storage.
package visitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// State is the on-disk visitor record.
type State struct {
	VisitorID string    `yaml:"visitor_id"`
	CreatedAt time.Time `yaml:"created_at"`
	// Server records which deployment the id belongs to.
	Server string `yaml:"server,omitempty"`
}

// DefaultPath returns <user config dir>/z-support/visitor.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "z-support", "visitor.yaml"), nil
}

// Load reads the state at path. A missing file is not an error; the zero
// State is returned.
func Load(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("parse %s: %w", path, err)
	}
	st.VisitorID = strings.TrimSpace(st.VisitorID)
	return st, nil
}

// Save writes the state, creating parent directories.
func Save(path string, st State) error {
	raw, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadOrCreate returns the stored visitor id for server, generating and
// saving a new one when none exists.
func LoadOrCreate(path, server string) (State, error) {
	st, err := Load(path)
	if err != nil {
		return State{}, err
	}
	if st.VisitorID != "" && (st.Server == "" || st.Server == server) {
		return st, nil
	}

	st = State{
		VisitorID: "visitor_" + uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Server:    server,
	}
	if err := Save(path, st); err != nil {
		return State{}, fmt.Errorf("save visitor state: %w", err)
	}
	return st, nil
}
