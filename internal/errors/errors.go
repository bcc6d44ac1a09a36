package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MissingData indicates a symbol without a name or range
	MissingData ErrorCode = "MISSING_DATA"
	// HostCallFailed indicates the outline or reference provider failed
	HostCallFailed ErrorCode = "HOST_CALL_FAILED"
	// Cancelled indicates the evaluation pass was cancelled or superseded
	Cancelled ErrorCode = "CANCELLED"
	// ConfigDrift indicates the cached configuration was invalidated mid-use
	ConfigDrift ErrorCode = "CONFIG_DRIFT"
	// ConfigInvalid indicates the configuration could not be loaded
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// BackendUnavailable indicates a backend is not running or reachable
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// Timeout indicates a host query timed out
	Timeout ErrorCode = "TIMEOUT"
	// RateLimited indicates too many concurrent requests
	RateLimited ErrorCode = "RATE_LIMITED"
	// IndexMissing indicates the SCIP index was not found
	IndexMissing ErrorCode = "INDEX_MISSING"
	// InvalidPattern indicates a blackbox glob that does not compile
	InvalidPattern ErrorCode = "INVALID_PATTERN"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditConfig suggests editing the configuration file
	EditConfig FixActionType = "edit-config"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Description string        `json:"description,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// LensError represents a typelens error with code, message, and suggestions
type LensError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// NewLensError creates a new LensError
func NewLensError(code ErrorCode, message string, cause error, suggestedFixes []FixAction) *LensError {
	return &LensError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
	}
}

// Wrap is NewLensError with the suggested fixes registered for code.
func Wrap(code ErrorCode, cause error, format string, args ...interface{}) *LensError {
	return NewLensError(code, fmt.Sprintf(format, args...), cause, GetSuggestedFixes(code))
}

// Error implements the error interface
func (e *LensError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LensError) Unwrap() error {
	return e.cause
}

// Is matches any LensError carrying the same code.
func (e *LensError) Is(target error) bool {
	t, ok := target.(*LensError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *LensError) WithDetails(details interface{}) *LensError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first LensError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var le *LensError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return InternalError
}

// HasCode reports whether err's chain contains a LensError with code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &LensError{Code: code})
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	IndexMissing: {
		{
			Type:        InstallTool,
			Tool:        "scip-typescript",
			Description: "Generate a SCIP index for the workspace",
		},
	},
	BackendUnavailable: {
		{
			Type:        EditConfig,
			Description: "Configure a language server under backend.lsp.servers",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "typelens config init --force",
			Description: "Rewrite the configuration with defaults",
		},
	},
	RateLimited: {
		{
			Type:        EditConfig,
			Description: "Raise lspSupervisor.referencesPerSecond",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
