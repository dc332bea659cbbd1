// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"
	"os"

	"mvdan.cc/sh/v3/shell"
)

// ErrEmptyCommand is returned by ParseCommand for a blank command line.
var ErrEmptyCommand = errors.New("empty command line")

// ParseCommand splits a configured command line into program and arguments
// using POSIX shell quoting rules. Parameter expansions are resolved
// against the current environment; command substitution is rejected.
func ParseCommand(line string) (name string, args []string, err error) {
	fields, err := shell.Fields(line, os.Getenv)
	if err != nil {
		return "", nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(fields) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return fields[0], fields[1:], nil
}
