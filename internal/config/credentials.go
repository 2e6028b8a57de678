package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Credentials is the token issued by the control plane at login.
type Credentials struct {
	Token string `yaml:"token"`
	Code  string `yaml:"code,omitempty"`
}

// CredentialStore persists Credentials in a user-private YAML file.
type CredentialStore struct {
	path string
}

// NewCredentialStore returns a store backed by path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// DefaultCredentialsPath is ~/.trellis/credentials.yaml.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".trellis", "credentials.yaml")
}

// Path returns the file the store reads and writes.
func (s *CredentialStore) Path() string {
	return s.path
}

// Load returns the stored credentials. A missing file yields empty credentials.
func (s *CredentialStore) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return c, nil
}

// Save writes c with mode 0600, creating the parent directory if needed.
func (s *CredentialStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Delete removes the stored credentials. Deleting nothing is not an error.
func (s *CredentialStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
