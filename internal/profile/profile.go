// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package profile defines connection profiles: the full description of how to
// reach a PostgreSQL server, minus the password itself. Passwords live in the
// OS keychain and are referenced from a profile by CredentialRef.
//
// A profile is immutable once constructed; the connection multiplexer holds a
// reference to it and never mutates it.
package profile

import (
	"strings"
	"time"

	errs "pgrun/cli/internal/errors"
)

// Default connection settings applied when a profile leaves them zero.
const (
	DefaultPort           = 5432
	DefaultConnectTimeout = 10 * time.Second
	DefaultAppName        = "pgrun"
)

// TLS modes accepted by TLSMode, mirroring libpq sslmode values.
const (
	TLSDisable    = "disable"
	TLSPrefer     = "prefer"
	TLSRequire    = "require"
	TLSVerifyCA   = "verify-ca"
	TLSVerifyFull = "verify-full"
)

// SSHTunnel describes an optional SSH hop the connection is carried through.
// When present, the multiplexer dials the database through this host instead
// of opening a direct TCP stream.
type SSHTunnel struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	PrivateKeyPath string `json:"private_key_path"`
}

// Profile holds everything needed to connect to one PostgreSQL server.
// Secrets are not stored here: CredentialRef names the keychain entry that
// holds the password.
type Profile struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port uint16 `json:"port"`
	User string `json:"user"`
	// CredentialRef names the OS keychain entry holding the password.
	CredentialRef string `json:"credential_ref"`
	// Database is the default database when the caller does not pick one.
	Database string `json:"database"`

	TLSMode         string `json:"tls_mode,omitempty"`
	TLSRootCertPath string `json:"tls_root_cert_path,omitempty"`
	TLSCertPath     string `json:"tls_cert_path,omitempty"`
	TLSKeyPath      string `json:"tls_key_path,omitempty"`

	StatementTimeout time.Duration `json:"statement_timeout,omitempty"`
	ConnectTimeout   time.Duration `json:"connect_timeout,omitempty"`
	ApplicationName  string `json:"application_name,omitempty"`

	SSH *SSHTunnel `json:"ssh,omitempty"`
}

// Validate checks the fields a profile cannot work without.
func (p *Profile) Validate() error {
	switch {
	case p == nil:
		return errs.New(errs.ProfileInvalid, "profile is nil")
	case strings.TrimSpace(p.ID) == "":
		return errs.New(errs.ProfileInvalid, "profile id is required")
	case strings.Contains(p.ID, keySeparator):
		return errs.New(errs.ProfileInvalid, "profile id must not contain '/'")
	case strings.TrimSpace(p.Host) == "":
		return errs.New(errs.ProfileInvalid, "host is required")
	case strings.TrimSpace(p.User) == "":
		return errs.New(errs.ProfileInvalid, "user is required")
	case strings.TrimSpace(p.Database) == "":
		return errs.New(errs.ProfileInvalid, "default database is required")
	}
	return nil
}

// EffectivePort returns the configured port or the PostgreSQL default.
func (p *Profile) EffectivePort() uint16 {
	if p.Port == 0 {
		return DefaultPort
	}
	return p.Port
}

// EffectiveDatabase returns database if non-empty, else the profile default.
func (p *Profile) EffectiveDatabase(database string) string {
	if strings.TrimSpace(database) == "" {
		return p.Database
	}
	return database
}

// EffectiveConnectTimeout returns the configured connect timeout or a default.
func (p *Profile) EffectiveConnectTimeout() time.Duration {
	if p.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return p.ConnectTimeout
}

// EffectiveAppName returns the configured application_name or "pgrun".
func (p *Profile) EffectiveAppName() string {
	if strings.TrimSpace(p.ApplicationName) == "" {
		return DefaultAppName
	}
	return p.ApplicationName
}

const keySeparator = "/"

// Key identifies one pool and the namespace for session leases: a profile id
// combined with a target database. Two requests with the same key always
// reuse the same pool.
type Key string

// NewKey derives the connection key for a profile id and target database.
func NewKey(profileID, database string) Key {
	return Key(profileID + keySeparator + database)
}

// Key derives the connection key for this profile and a target database,
// falling back to the profile's default database when empty.
func (p *Profile) Key(database string) Key {
	return NewKey(p.ID, p.EffectiveDatabase(database))
}

// BelongsTo reports whether the key was derived from the given profile id,
// regardless of target database.
func (k Key) BelongsTo(profileID string) bool {
	return strings.HasPrefix(string(k), profileID+keySeparator)
}
