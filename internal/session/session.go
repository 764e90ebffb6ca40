// Package session stores the server URL and API key the command line client
// logs in with, so later invocations can reuse them.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configDirEnv = "IMMICH_CONFIG_DIR"
	authFileName = "auth.yml"
)

// ErrNotLoggedIn is returned by Load when no credentials have been saved
var ErrNotLoggedIn = errors.New("not logged in, run login-key first")

// Credentials is the content of auth.yml
type Credentials struct {
	InstanceURL string `yaml:"instanceUrl"`
	APIKey      string `yaml:"apiKey"`
}

// Store reads and writes auth.yml inside one directory
type Store struct {
	dir string
}

// NewStore uses dir, falling back to $IMMICH_CONFIG_DIR and then <user config dir>/immich
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = os.Getenv(configDirEnv)
	}
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		dir = filepath.Join(base, "immich")
	}
	return &Store{dir: dir}, nil
}

// Path is the location of the credentials file
func (s *Store) Path() string {
	return filepath.Join(s.dir, authFileName)
}

// Load returns the saved credentials or ErrNotLoggedIn
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path(), err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path(), err)
	}
	if creds.InstanceURL == "" || creds.APIKey == "" {
		return nil, ErrNotLoggedIn
	}
	return &creds, nil
}

// Save writes creds, readable by the current user only
func (s *Store) Save(creds Credentials) error {
	creds.InstanceURL = strings.TrimRight(strings.TrimSpace(creds.InstanceURL), "/")
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	if creds.InstanceURL == "" || creds.APIKey == "" {
		return errors.New("instance url and api key are required")
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}
	if err := os.WriteFile(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.Path(), err)
	}
	return os.Chmod(s.Path(), 0o600)
}

// Delete removes the credentials file. A missing file is not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.Path(), err)
	}
	return nil
}
