// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError tells the operator which step of a benchmark run
	// failed, on what, and what to change before running again.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("create result log").
	//		WithResource(cfg.Results.Dir).
	//		WithSuggestion("Point results.dir at a writable directory").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		Operation   string // verb phrase, e.g. "prepare workspaces"
		Resource    string // path, tool or file name; optional
		Suggestions []string
		Cause       error
	}

	// ErrorContext accumulates the fields of an ActionableError.
	ErrorContext struct {
		ae ActionableError
	}
)

// NewErrorContext returns an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WrapWithOperation is shorthand for an ActionableError carrying only an
// operation and a cause. A nil err yields nil.
func WrapWithOperation(err error, operation string) *ActionableError {
	if err == nil {
		return nil
	}
	return &ActionableError{Operation: operation, Cause: err}
}

func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// Format renders the message and one bullet per suggestion. Verbose output
// also walks the cause chain, numbering each level.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		b.WriteByte('\n')
	}
	for _, s := range e.Suggestions {
		b.WriteString("\n  • " + s)
	}

	if !verbose || e.Cause == nil {
		return b.String()
	}
	b.WriteString("\n\nError chain:")
	for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
		fmt.Fprintf(&b, "\n  %d. %s", depth, err)
	}
	return b.String()
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.ae.Operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.ae.Resource = res
	return c
}

// WithSuggestion appends a hint; hints are shown in call order.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.ae.Suggestions = append(c.ae.Suggestions, sug)
	return c
}

func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.ae.Cause = err
	return c
}

// Build returns the accumulated error, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.ae.Operation == "" {
		return nil
	}
	ae := c.ae
	ae.Suggestions = append([]string(nil), c.ae.Suggestions...)
	return &ae
}

// BuildError is Build typed as error, so a missing operation yields a true
// nil interface.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
