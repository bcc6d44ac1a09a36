package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLensError(t *testing.T) {
	cause := errors.New("underlying error")
	fixes := []FixAction{{Type: RunCommand, Command: "typelens config init"}}

	err := NewLensError(IndexMissing, "SCIP index not found", cause, fixes)

	assert.Equal(t, IndexMissing, err.Code)
	assert.Equal(t, "SCIP index not found", err.Message)
	assert.Len(t, err.SuggestedFixes, 1)
}

func TestLensError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      BackendUnavailable,
			message:   "LSP not running",
			cause:     errors.New("connection refused"),
			wantParts: []string{"BACKEND_UNAVAILABLE", "LSP not running", "connection refused"},
		},
		{
			name:      "without cause",
			code:      HostCallFailed,
			message:   "references failed",
			wantParts: []string{"HOST_CALL_FAILED", "references failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLensError(tt.code, tt.message, tt.cause, nil).Error()
			for _, part := range tt.wantParts {
				assert.Contains(t, got, part)
			}
		})
	}
}

func TestLensError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewLensError(InternalError, "something went wrong", cause, nil)
	assert.Same(t, cause, err.Unwrap())

	assert.Nil(t, NewLensError(Timeout, "request timed out", nil, nil).Unwrap())
}

func TestCodeOfAndHasCode(t *testing.T) {
	inner := Wrap(Cancelled, errCanceled, "pass %d superseded", 3)
	wrapped := fmt.Errorf("resolve: %w", inner)

	assert.Equal(t, Cancelled, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, Cancelled))
	assert.False(t, HasCode(wrapped, Timeout))
	assert.Equal(t, InternalError, CodeOf(errors.New("plain")))
	require.ErrorIs(t, wrapped, errCanceled)
}

func TestGetSuggestedFixes(t *testing.T) {
	assert.NotEmpty(t, GetSuggestedFixes(IndexMissing))
	assert.NotEmpty(t, GetSuggestedFixes(BackendUnavailable))
	assert.Nil(t, GetSuggestedFixes(MissingData))

	err := Wrap(ConfigInvalid, nil, "bad config")
	require.Len(t, err.SuggestedFixes, 1)
	assert.Equal(t, RunCommand, err.SuggestedFixes[0].Type)
}

func TestWithDetails(t *testing.T) {
	err := NewLensError(InvalidPattern, "bad glob", nil, nil).WithDetails(map[string]string{"pattern": "[a"})
	assert.Equal(t, map[string]string{"pattern": "[a"}, err.Details)
}

var errCanceled = errors.New("context canceled")
