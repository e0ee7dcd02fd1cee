// Package config loads and stores connection profiles in the XDG config dir.
// Only non-secret settings are kept here; passwords go to the OS keychain and
// are referenced from each profile by its credential reference.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/profile"
	"pgrun/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings and the saved connection profiles.
type Config struct {
	LogLevel string            `json:"log_level"`
	Profiles []profile.Profile `json:"profiles"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	var c Config
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.LogLevel = "info"
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// FindProfile returns the saved profile with the given id.
func (c *Config) FindProfile(id string) (*profile.Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].ID == id {
			return &c.Profiles[i], nil
		}
	}
	return nil, errs.New(errs.ProfileInvalid, "no profile named "+id)
}

// UpsertProfile adds a profile or replaces the existing one with the same id.
func (c *Config) UpsertProfile(p profile.Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].ID == p.ID {
			c.Profiles[i] = p
			return
		}
	}
	c.Profiles = append(c.Profiles, p)
}

// RemoveProfile deletes the profile with the given id.
// It reports whether a profile was removed.
func (c *Config) RemoveProfile(id string) bool {
	for i := range c.Profiles {
		if c.Profiles[i].ID == id {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			return true
		}
	}
	return false
}
