package network

import (
	"errors"
	"fmt"
)

// ErrNodeOutOfRange is returned for validator ids outside
// [0, validators_count).
var ErrNodeOutOfRange = errors.New("validator id out of range")

// ConfigError is a fatal failure of one of the configuration
// commands (generate-template, generate-config, finalize). The
// offending command and its captured output are carried verbatim.
type ConfigError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("command %q exited with code %d\nstdout: %s\nstderr: %s",
		e.Command, e.ExitCode, e.Stdout, e.Stderr)
}
