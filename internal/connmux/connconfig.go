// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connmux

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/profile"
)

// connString builds a keyword/value connection string for the profile and
// target database, resolving the password through the secret source.
//
// TLS certificate paths that cannot be read are skipped rather than failing
// the connection: the profile degrades to the plain sslmode posture. This
// leniency is intentional.
func (m *Multiplexer) connString(prof *profile.Profile, database string) (string, error) {
	var b strings.Builder

	kv := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quoteKV(value))
	}

	kv("host", prof.Host)
	kv("port", strconv.Itoa(int(prof.EffectivePort())))
	kv("user", prof.User)
	kv("dbname", prof.EffectiveDatabase(database))
	kv("application_name", prof.EffectiveAppName())

	secs := int(prof.EffectiveConnectTimeout().Seconds())
	if secs < 1 {
		secs = 1
	}
	kv("connect_timeout", strconv.Itoa(secs))

	if prof.CredentialRef != "" {
		password, err := m.secrets.Password(prof.CredentialRef)
		if err != nil {
			return "", errs.Wrap(errs.ConnectionFailed, "resolve credential "+prof.CredentialRef, err)
		}
		kv("password", password)
	}

	mode := prof.TLSMode
	if mode == "" {
		mode = profile.TLSPrefer
	}
	kv("sslmode", mode)

	if prof.TLSRootCertPath != "" {
		if readableFile(prof.TLSRootCertPath) {
			kv("sslrootcert", prof.TLSRootCertPath)
		} else {
			logDebug("sslrootcert %s unreadable, continuing without it", prof.TLSRootCertPath)
		}
	}
	if prof.TLSCertPath != "" && prof.TLSKeyPath != "" {
		if readableFile(prof.TLSCertPath) && readableFile(prof.TLSKeyPath) {
			kv("sslcert", prof.TLSCertPath)
			kv("sslkey", prof.TLSKeyPath)
		} else {
			logDebug("client cert pair unreadable, continuing without it")
		}
	}

	return b.String(), nil
}

// sessionConfig builds the pgx connection config for a session connection.
func (m *Multiplexer) sessionConfig(prof *profile.Profile, database string) (*pgx.ConnConfig, error) {
	s, err := m.connString(prof, database)
	if err != nil {
		return nil, err
	}
	cfg, err := pgx.ParseConfig(s)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionFailed, "parse connection config", err)
	}
	applyProfile(&cfg.Config.RuntimeParams, prof)
	if prof.SSH != nil {
		cfg.DialFunc = sshDialFunc(prof.SSH)
	}
	return cfg, nil
}

// poolConfig builds the pgxpool config for a pooled registry entry.
func (m *Multiplexer) poolConfig(prof *profile.Profile, database string) (*pgxpool.Config, error) {
	s, err := m.connString(prof, database)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(s)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionFailed, "parse pool config", err)
	}
	cfg.MaxConns = poolMaxConns
	cfg.MaxConnIdleTime = poolIdleTimeout
	applyProfile(&cfg.ConnConfig.Config.RuntimeParams, prof)
	if prof.SSH != nil {
		cfg.ConnConfig.DialFunc = sshDialFunc(prof.SSH)
	}
	return cfg, nil
}

// applyProfile sets server-side runtime parameters derived from the profile.
func applyProfile(params *map[string]string, prof *profile.Profile) {
	if prof.StatementTimeout > 0 {
		if *params == nil {
			*params = make(map[string]string)
		}
		(*params)["statement_timeout"] = strconv.FormatInt(prof.StatementTimeout.Milliseconds(), 10)
	}
}

// quoteKV quotes one keyword/value connection string value.
func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return fmt.Sprintf("'%s'", v)
}

// readableFile reports whether path exists and is a regular file.
func readableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
