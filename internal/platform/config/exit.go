package config

import (
	"fmt"
	"os"

	"github.com/tta-solo/engine/internal/platform/errors"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
// It provides a consistent fatal-exit pattern for CLI entry points.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// ExitErr writes the error to stderr and exits with the code derived from
// the error's domain kind: 1 for user errors, 2 for internal errors.
func ExitErr(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(errors.ExitCode(err))
}
