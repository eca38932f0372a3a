// Package config stores connection profiles in the OS keyring and resolves
// the effective settings from flags, environment, a YAML file and the
// active profile.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/99designs/keyring"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

const (
	serviceName       = "apiconn"
	defaultProfile    = "default"
	profilePrefix     = "profile:"
	profileIndexKey   = "profiles_index"
	currentProfileKey = "current_profile"

	envKeyringBackend  = "APICONN_KEYRING_BACKEND"
	envKeyringPassword = "APICONN_KEYRING_PASSWORD"
	envCredentialsDir  = "APICONN_CREDENTIALS_DIR"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = defaultProfile

// openKeyring can be replaced in tests to use a mock keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SetOpenKeyring allows replacing the keyring opener for testing.
// Returns a cleanup function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// OpenKeyring opens the keyring profiles and tokens are stored in.
func OpenKeyring() (keyring.Keyring, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

// Profile holds everything needed to build a connection.
type Profile struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	ChannelID    string `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	ProducerID   string `json:"producer_id,omitempty" yaml:"producer_id,omitempty"`
	DeviceID     string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	RefreshPath  string `json:"refresh_path,omitempty" yaml:"refresh_path,omitempty"`
	RedisURL     string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
}

// Identity returns the identity headers of the profile.
func (p Profile) Identity() connection.Identity {
	return connection.Identity{
		ChannelID:  p.ChannelID,
		ProducerID: p.ProducerID,
		DeviceID:   p.DeviceID,
	}
}

// ConnectionConfig returns the configuration a Connection is built with.
func (p Profile) ConnectionConfig() connection.Config {
	return connection.Config{BaseURL: p.BaseURL, Authentication: p.Identity()}
}

// Merge returns p with every non-empty field of over applied on top.
func (p Profile) Merge(over Profile) Profile {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&p.BaseURL, over.BaseURL)
	set(&p.ChannelID, over.ChannelID)
	set(&p.ProducerID, over.ProducerID)
	set(&p.DeviceID, over.DeviceID)
	set(&p.Token, over.Token)
	set(&p.RefreshToken, over.RefreshToken)
	set(&p.RefreshPath, over.RefreshPath)
	set(&p.RedisURL, over.RedisURL)
	p.BaseURL = strings.TrimSuffix(p.BaseURL, "/")
	return p
}

// WithoutSecrets returns p with its tokens cleared.
func (p Profile) WithoutSecrets() Profile {
	p.Token = ""
	p.RefreshToken = ""
	return p
}

// ErrNotConfigured is returned when no base URL is configured anywhere.
var ErrNotConfigured = errors.New("apiconn not configured - run 'apiconn auth login' first")

func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName: serviceName,
	}

	backend := keyringBackendMode()
	if backend == keyringBackendSystem {
		return cfg
	}

	// Auto mode still configures the file backend so keyring.Open can fall
	// through to it when no native backend is available.
	configureFileBackend(&cfg)

	if shouldForceFileBackend(runtime.GOOS, backend, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	return cfg
}

func keyringBackendMode() string {
	switch strings.ToLower(firstNonBlankEnv(envKeyringBackend)) {
	case keyringBackendFile:
		return keyringBackendFile
	case keyringBackendSystem, "os", "native":
		return keyringBackendSystem
	default:
		return keyringBackendAuto
	}
}

// shouldForceFileBackend reports whether only the encrypted file backend may
// be used. Headless Linux has no secret service to talk to.
func shouldForceFileBackend(goos, backend, dbusAddr string) bool {
	if backend == keyringBackendFile {
		return true
	}
	if backend != keyringBackendAuto {
		return false
	}
	return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
}

func configureFileBackend(cfg *keyring.Config) {
	cfg.FileDir = keyringFileDir()
	cfg.FilePasswordFunc = keyringFilePassword
}

func configDir() string {
	if base := firstNonBlankEnv(envCredentialsDir); base != "" {
		return base
	}
	if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, serviceName)
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".config", serviceName)
	}
	return filepath.Join(os.TempDir(), serviceName)
}

func keyringFileDir() string {
	return filepath.Join(configDir(), "keyring")
}

func keyringFilePassword(prompt string) (string, error) {
	if password, ok := os.LookupEnv(envKeyringPassword); ok && strings.TrimSpace(password) != "" {
		return password, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

func firstNonBlankEnv(keys ...string) string {
	for _, key := range keys {
		if trimmed := strings.TrimSpace(os.Getenv(key)); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func normalizeProfileName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultProfile
	}
	return name
}

func profileKey(name string) string {
	return profilePrefix + normalizeProfileName(name)
}

func loadProfileIndex(ring keyring.Keyring) ([]string, error) {
	item, err := ring.Get(profileIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get profile index: %w", err)
	}
	var profiles []string
	if err := json.Unmarshal(item.Data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile index: %w", err)
	}
	return profiles, nil
}

func saveProfileIndex(ring keyring.Keyring, profiles []string) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profile index: %w", err)
	}
	return ring.Set(keyring.Item{
		Key:  profileIndexKey,
		Data: data,
	})
}

func normalizeProfiles(profiles []string) []string {
	seen := make(map[string]struct{}, len(profiles))
	var out []string
	for _, p := range profiles {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SaveProfile stores p under name and makes it the current profile.
func SaveProfile(name string, p Profile) error {
	name = normalizeProfileName(name)

	ring, err := OpenKeyring()
	if err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := ring.Set(keyring.Item{
		Key:   profileKey(name),
		Data:  data,
		Label: serviceName + " profile (" + name + ")",
	}); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	profiles, err := loadProfileIndex(ring)
	if err != nil {
		return err
	}
	if err := saveProfileIndex(ring, normalizeProfiles(append(profiles, name))); err != nil {
		return err
	}

	return setCurrentProfile(ring, name)
}

// LoadProfile retrieves the named profile.
func LoadProfile(name string) (Profile, error) {
	ring, err := OpenKeyring()
	if err != nil {
		return Profile{}, err
	}

	item, err := ring.Get(profileKey(name))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Profile{}, ErrNotConfigured
		}
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return p, nil
}

// DeleteProfile removes a stored profile. When it was the current profile,
// the first remaining profile becomes current.
func DeleteProfile(name string) error {
	name = normalizeProfileName(name)

	ring, err := OpenKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(profileKey(name)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove profile: %w", err)
	}

	profiles, err := loadProfileIndex(ring)
	if err != nil {
		return err
	}
	var remaining []string
	for _, p := range profiles {
		if p != name {
			remaining = append(remaining, p)
		}
	}
	if err := saveProfileIndex(ring, remaining); err != nil {
		return err
	}

	if current, err := currentProfile(ring); err == nil && current == name {
		next := defaultProfile
		if len(remaining) > 0 {
			next = remaining[0]
		}
		_ = setCurrentProfile(ring, next)
	}
	return nil
}

// ListProfiles returns the known profile names.
func ListProfiles() ([]string, error) {
	ring, err := OpenKeyring()
	if err != nil {
		return nil, err
	}
	return loadProfileIndex(ring)
}

// CurrentProfile returns the active profile name.
func CurrentProfile() (string, error) {
	ring, err := OpenKeyring()
	if err != nil {
		return "", err
	}
	return currentProfile(ring)
}

func currentProfile(ring keyring.Keyring) (string, error) {
	item, err := ring.Get(currentProfileKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return defaultProfile, nil
		}
		return "", fmt.Errorf("failed to get current profile: %w", err)
	}
	return normalizeProfileName(string(item.Data)), nil
}

// SetCurrentProfile sets the active profile name.
func SetCurrentProfile(name string) error {
	ring, err := OpenKeyring()
	if err != nil {
		return err
	}
	return setCurrentProfile(ring, name)
}

func setCurrentProfile(ring keyring.Keyring, name string) error {
	return ring.Set(keyring.Item{
		Key:  currentProfileKey,
		Data: []byte(normalizeProfileName(name)),
	})
}
