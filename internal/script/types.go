package script

import (
	"context"
	"slices"
	"time"
)

// Language identifies a supported scripting language.
type Language string

const (
	LanguageTengo Language = "tengo"
	LanguageLua   Language = "lua"
)

// ErrorType categorizes different types of script errors
type ErrorType string

const (
	ErrorTypeCompilation ErrorType = "compilation"
	ErrorTypeExecution   ErrorType = "execution"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeUnsupported ErrorType = "unsupported"
)

// Program is a script body ready to run.
type Program struct {
	Name     string
	Language Language
	Source   string
}

// Input is exposed to the running script as the globals args, vars and props.
type Input struct {
	Args       []string
	Vars       map[string]string
	Properties map[string]string
}

// Output contains the results of script execution
type Output struct {
	// Result is the value of the script's global "result", if set.
	Result any
	// Logs holds every line passed to log(...), in order.
	Logs []string
	// Files holds the named outputs passed to emit(name, content), in emit order.
	Files   []File
	Elapsed time.Duration
}

// File is one named output produced by a script.
type File struct {
	Name    string
	Content string
}

// Engine runs programs written in one language.
type Engine interface {
	Language() Language
	Run(ctx context.Context, prog *Program, in *Input) (*Output, error)
}

// SecurityLimits defines resource constraints for script execution
type SecurityLimits struct {
	MaxExecutionTime time.Duration
	// AllowedPackages lists the standard modules a script may import.
	AllowedPackages []string
}

// DefaultSecurityLimits provides safe default constraints for script execution
var DefaultSecurityLimits = SecurityLimits{
	MaxExecutionTime: 30 * time.Second,
	AllowedPackages:  []string{"fmt", "strings", "math", "rand", "text", "times", "json"},
}

// GetDefaultSecurityLimits returns a copy of the default security limits
func GetDefaultSecurityLimits() SecurityLimits {
	limits := DefaultSecurityLimits
	limits.AllowedPackages = slices.Clone(DefaultSecurityLimits.AllowedPackages)
	return limits
}

// ScriptError represents script-related errors with context
type ScriptError struct {
	Type       ErrorType
	ScriptName string
	Message    string
	Cause      error
	// Logs captured before the failure.
	Logs []string
}

func (e *ScriptError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// NewScriptError creates a new ScriptError with the given parameters
func NewScriptError(errorType ErrorType, scriptName, message string, cause error) *ScriptError {
	return &ScriptError{
		Type:       errorType,
		ScriptName: scriptName,
		Message:    message,
		Cause:      cause,
	}
}
