// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"os"
)

// VerboseEnv is the environment variable enabling debug output; the CLI's
// --verbose flag sets it so every module picks it up.
const VerboseEnv = "PGRUN_VERBOSE"

// debugWriter is swapped in tests.
var debugWriter io.Writer = os.Stderr

// Verbose reports whether debug output is enabled.
func Verbose() bool {
	return os.Getenv(VerboseEnv) == "1"
}

// Debugf writes a masked debug line to stderr when verbose mode is enabled.
// Secrets pass through Mask, so a DSN or password in the message is safe.
func Debugf(format string, args ...any) {
	if !Verbose() {
		return
	}
	fmt.Fprintln(debugWriter, "[DEBUG] "+Mask(fmt.Sprintf(format, args...)))
}
