package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for the config package.
var (
	// ErrLanguageDisabled indicates the file's language is not enabled.
	ErrLanguageDisabled = errors.New("language not enabled")

	// ErrUnknownLanguage indicates no language is associated with the file.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrConfigNotFound indicates an explicitly named config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
)

// ValidationError describes an invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// ScriptError describes a failure in the style script.
type ScriptError struct {
	Path string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("style script %s: %v", e.Path, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
