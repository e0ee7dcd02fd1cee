// Package main is the entry point for the pgrun CLI application.
// It executes multi-statement SQL scripts against configured PostgreSQL
// connection profiles.
package main

import (
	"pgrun/cli/cmd"
)

// main is the entry point for the pgrun CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
