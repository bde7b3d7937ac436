// Package env provides environment configuration helpers for parley commands.
package env

import (
	"fmt"
	"os"
)

// Get returns the value of the named variable, or def if unset.
func Get(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// Required returns the value of the named variable.
// Exits with a usage message if not set.
func Required(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", name)
		fmt.Fprintln(os.Stderr, "Set it in the environment or in .env.local")
		os.Exit(1)
	}
	return v
}
