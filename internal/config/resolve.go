package config

import (
	"errors"
	"os"
	"strings"
)

// Environment variables read by Resolve.
const (
	EnvBaseURL      = "APICONN_BASE_URL"
	EnvChannelID    = "APICONN_CHANNEL_ID"
	EnvProducerID   = "APICONN_PRODUCER_ID"
	EnvDeviceID     = "APICONN_DEVICE_ID"
	EnvToken        = "APICONN_TOKEN"
	EnvRefreshToken = "APICONN_REFRESH_TOKEN"
	EnvRefreshPath  = "APICONN_REFRESH_PATH"
	EnvRedisURL     = "APICONN_REDIS_URL"
	EnvProfile      = "APICONN_PROFILE"
	EnvConfigFile   = "APICONN_CONFIG"
)

// Source names a layer Resolve read values from.
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlags   Source = "flags"
)

// Options are the inputs to Resolve that come from the command line.
type Options struct {
	// Profile names the keyring profile; empty means APICONN_PROFILE or the
	// current profile.
	Profile string
	// File is a YAML config file; empty means APICONN_CONFIG or the default
	// path when it exists.
	File string
	// Flags holds values given as flags. Empty fields are ignored.
	Flags Profile
	// AllowMissingFile ignores an explicitly named file that does not exist
	// yet, for callers about to create it.
	AllowMissingFile bool
}

// Resolved is the effective configuration.
type Resolved struct {
	ProfileName string
	Profile     Profile
	Sources     []Source
}

// Resolve merges the keyring profile, the config file, the environment and
// the flags, later layers winning field by field.
func Resolve(opts Options) (Resolved, error) {
	var out Resolved
	var keyringErr error

	out.ProfileName = strings.TrimSpace(opts.Profile)
	if out.ProfileName == "" {
		out.ProfileName = strings.TrimSpace(os.Getenv(EnvProfile))
	}
	if out.ProfileName == "" {
		current, err := CurrentProfile()
		if err != nil {
			keyringErr = err
		}
		out.ProfileName = normalizeProfileName(current)
	}

	if keyringErr == nil {
		p, err := LoadProfile(out.ProfileName)
		switch {
		case err == nil:
			out.apply(SourceKeyring, p)
		case !errors.Is(err, ErrNotConfigured):
			keyringErr = err
		}
	}

	path, explicit := configFilePath(opts.File)
	if path != "" {
		p, err := LoadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) || (explicit && !opts.AllowMissingFile) {
				return Resolved{}, err
			}
		} else {
			out.apply(SourceFile, p)
		}
	}

	out.apply(SourceEnv, envProfile())
	out.apply(SourceFlags, opts.Flags)

	if out.Profile.BaseURL == "" {
		if keyringErr != nil {
			return Resolved{}, keyringErr
		}
		return Resolved{}, ErrNotConfigured
	}
	return out, nil
}

func (r *Resolved) apply(src Source, p Profile) {
	if p == (Profile{}) {
		return
	}
	r.Profile = r.Profile.Merge(p)
	r.Sources = append(r.Sources, src)
}

func configFilePath(flag string) (string, bool) {
	if path := strings.TrimSpace(flag); path != "" {
		return path, true
	}
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		return path, true
	}
	return DefaultConfigPath(), false
}

func envProfile() Profile {
	return Profile{
		BaseURL:      strings.TrimSpace(os.Getenv(EnvBaseURL)),
		ChannelID:    strings.TrimSpace(os.Getenv(EnvChannelID)),
		ProducerID:   strings.TrimSpace(os.Getenv(EnvProducerID)),
		DeviceID:     strings.TrimSpace(os.Getenv(EnvDeviceID)),
		Token:        strings.TrimSpace(os.Getenv(EnvToken)),
		RefreshToken: strings.TrimSpace(os.Getenv(EnvRefreshToken)),
		RefreshPath:  strings.TrimSpace(os.Getenv(EnvRefreshPath)),
		RedisURL:     strings.TrimSpace(os.Getenv(EnvRedisURL)),
	}
}
