// Package errors provides structured CLI error types for tether.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitNetwork   = 3  // Network/connection error
	ExitConfig    = 4  // Configuration error
	ExitExecution = 6  // Shell or session failure
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// NotInteractive returns an error when a session command runs without a
// terminal on stdin and stdout.
func NotInteractive() *CLIError {
	return &CLIError{
		Message: "A terminal session needs an interactive terminal",
		Hint:    "Run this command directly in a terminal, not through a pipe or redirect",
		Code:    ExitUsage,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your tether config directory or run 'tether doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// UnknownRenderer returns an error for an unsupported renderer name.
func UnknownRenderer(name string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Unknown renderer: %s", name),
		Hint:    "Use one of: auto, accelerated, canvas, default",
		Code:    ExitUsage,
	}
}

// ThemeInvalid returns an error for a theme file that cannot be used.
func ThemeInvalid(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Cannot load theme: %s", path),
		Hint:    "Themes are YAML or TOML files with #rrggbb colours and a 16-entry palette",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// SessionConfigInvalid returns an error for a rejected session configuration.
func SessionConfigInvalid(cause error) *CLIError {
	return &CLIError{
		Message: "Invalid terminal session settings",
		Hint:    "Check --font-size and --scrollback, or run 'tether config list'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// SessionFailed returns an error for a session that could not start.
func SessionFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Terminal session failed",
		Hint:    "Run with --log-level=debug --log-file=<path> for details",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// ConnectFailed returns an error when the websocket endpoint is unreachable.
// It detects common failure patterns and provides specific hints.
func ConnectFailed(url string, cause error) *CLIError {
	hint := "Check the URL and your network connection"

	if cause != nil {
		switch msg := cause.Error(); {
		case containsAny(msg, "connection refused"):
			hint = "Is 'tether serve' running at that address?"
		case containsAny(msg, "404", "not found"):
			hint = "The endpoint path is usually /v1/terminal"
		case containsAny(msg, "timeout", "deadline exceeded"):
			hint = "The server did not answer in time; check firewalls and the address"
		case containsAny(msg, "scheme"):
			hint = "Use a ws://, wss://, http:// or https:// URL"
		}
	}

	return &CLIError{
		Message: fmt.Sprintf("Failed to connect to %s", url),
		Hint:    hint,
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// ServeFailed returns an error when the server cannot listen.
func ServeFailed(addr string, cause error) *CLIError {
	hint := "Check that the address is valid"
	if cause != nil && containsAny(cause.Error(), "address already in use") {
		hint = "Another process is using this address; pass a different --addr"
	}

	return &CLIError{
		Message: fmt.Sprintf("Failed to serve on %s", addr),
		Hint:    hint,
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// RecordingNotFound returns an error for an unknown recording id.
func RecordingNotFound(id string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Recording not found: %s", id),
		Hint:    "Run 'tether history list' to see stored recordings",
		Code:    ExitGeneral,
	}
}

// InvalidSpeed returns an error for a non-positive playback speed.
func InvalidSpeed(speed float64) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid playback speed: %g", speed),
		Hint:    "Use a positive multiplier such as 0.5, 1 or 4",
		Code:    ExitUsage,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
