package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the YAML file read when no file is named.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// LoadFile reads a YAML profile. Unknown keys are rejected so typos do not
// silently fall back to lower-precedence values.
func LoadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return p, nil
}

// WriteFile writes p as YAML with owner-only permissions.
func WriteFile(path string, p Profile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}
	return nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables that are already set keep their values.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

// LoadDefaultEnvFile loads .env from the config directory when it exists.
func LoadDefaultEnvFile() {
	path := filepath.Join(configDir(), ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}
