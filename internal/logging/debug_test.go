// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestDebugfVerboseGate(t *testing.T) {
	var buf bytes.Buffer
	old := debugWriter
	debugWriter = &buf
	defer func() { debugWriter = old }()

	t.Setenv(VerboseEnv, "")
	Debugf("quiet %s", "message")
	if buf.Len() != 0 {
		t.Fatalf("debug output written without verbose mode: %q", buf.String())
	}

	t.Setenv(VerboseEnv, "1")
	Debugf("pool for %s degraded", "prod/appdb")
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] pool for prod/appdb degraded") {
		t.Errorf("debug line = %q", out)
	}
}

func TestDebugfMasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	old := debugWriter
	debugWriter = &buf
	defer func() { debugWriter = old }()
	t.Setenv(VerboseEnv, "1")

	Debugf("dialing with password=hunter2")
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked into debug output: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "password=***") {
		t.Errorf("password not masked: %q", buf.String())
	}
}
