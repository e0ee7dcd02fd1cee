// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package profile

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := Profile{ID: "prod", Host: "db.example.com", User: "app", Database: "appdb"}

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr bool
	}{
		{name: "valid profile", mutate: func(p *Profile) {}, wantErr: false},
		{name: "missing id", mutate: func(p *Profile) { p.ID = "" }, wantErr: true},
		{name: "id with separator", mutate: func(p *Profile) { p.ID = "a/b" }, wantErr: true},
		{name: "missing host", mutate: func(p *Profile) { p.Host = " " }, wantErr: true},
		{name: "missing user", mutate: func(p *Profile) { p.User = "" }, wantErr: true},
		{name: "missing database", mutate: func(p *Profile) { p.Database = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyDerivation(t *testing.T) {
	p := Profile{ID: "prod", Host: "h", User: "u", Database: "appdb"}

	if got := p.Key(""); got != NewKey("prod", "appdb") {
		t.Errorf("Key with empty database = %q, want default database key", got)
	}
	if got := p.Key("analytics"); got != NewKey("prod", "analytics") {
		t.Errorf("Key = %q, want prod/analytics", got)
	}
	// Same inputs must derive the same key so pool lookups stay stable.
	if p.Key("analytics") != p.Key("analytics") {
		t.Error("identical inputs produced different keys")
	}
}

func TestKeyBelongsTo(t *testing.T) {
	k := NewKey("prod", "appdb")
	if !k.BelongsTo("prod") {
		t.Error("key should belong to its own profile id")
	}
	if k.BelongsTo("pro") {
		t.Error("prefix of profile id must not match")
	}
	if k.BelongsTo("other") {
		t.Error("unrelated profile id must not match")
	}
}

func TestEffectiveDefaults(t *testing.T) {
	p := Profile{ID: "p", Host: "h", User: "u", Database: "d"}

	if got := p.EffectivePort(); got != DefaultPort {
		t.Errorf("EffectivePort() = %d, want %d", got, DefaultPort)
	}
	if got := p.EffectiveConnectTimeout(); got != DefaultConnectTimeout {
		t.Errorf("EffectiveConnectTimeout() = %v, want %v", got, DefaultConnectTimeout)
	}
	if got := p.EffectiveAppName(); got != DefaultAppName {
		t.Errorf("EffectiveAppName() = %q, want %q", got, DefaultAppName)
	}

	p.Port = 6432
	p.ConnectTimeout = 3 * time.Second
	p.ApplicationName = "reporting"
	if p.EffectivePort() != 6432 || p.EffectiveConnectTimeout() != 3*time.Second || p.EffectiveAppName() != "reporting" {
		t.Error("configured values must win over defaults")
	}
}
