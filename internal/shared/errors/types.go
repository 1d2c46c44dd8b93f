package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Kind is the closed set of failure categories surfaced to callers. The
// string values are stable and travel over the wire as error.type.
type Kind string

const (
	KindUnknown                        Kind = ""
	KindInvalidParams                  Kind = "invalid_tool_params"
	KindPathNotInWorkspace             Kind = "path_not_in_workspace"
	KindFileNotFound                   Kind = "file_not_found"
	KindPermissionDenied               Kind = "permission_denied"
	KindNoSpaceLeft                    Kind = "no_space_left"
	KindTargetIsDirectory              Kind = "target_is_directory"
	KindPathIsNotDirectory             Kind = "path_is_not_a_directory"
	KindReadFailure                    Kind = "read_content_failure"
	KindWriteFailure                   Kind = "file_write_failure"
	KindAttemptToCreateExistingFile    Kind = "attempt_to_create_existing_file"
	KindEditNoOccurrenceFound          Kind = "edit_no_occurrence_found"
	KindEditExpectedOccurrenceMismatch Kind = "edit_expected_occurrence_mismatch"
	KindEditNoChange                   Kind = "edit_no_change"
	KindListDirectoryFailure           Kind = "ls_execution_error"
	KindGlobFailure                    Kind = "glob_execution_error"
	KindGrepFailure                    Kind = "grep_execution_error"
	KindReadManyFailure                Kind = "read_many_files_error"
	KindApprovalRejected               Kind = "approval_rejected"
	KindApprovalExpired                Kind = "approval_expired"
)

// ToolError carries both renderings a failed operation needs: a short
// Display string for humans and a Raw diagnostic the agent can use to
// self-correct.
type ToolError struct {
	Kind    Kind
	Display string
	Raw     string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Raw != "" {
		return e.Raw
	}
	if e.Display != "" {
		return e.Display
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// New builds a ToolError. When raw is empty the display text is reused.
func New(kind Kind, display, raw string) *ToolError {
	if raw == "" {
		raw = display
	}
	return &ToolError{Kind: kind, Display: display, Raw: raw}
}

// Newf builds a ToolError whose display and raw texts are the same formatted message.
func Newf(kind Kind, format string, args ...any) *ToolError {
	msg := fmt.Sprintf(format, args...)
	return &ToolError{Kind: kind, Display: msg, Raw: msg}
}

// Wrap attaches a kind and display text to an underlying error. The raw
// diagnostic keeps the underlying message.
func Wrap(kind Kind, err error, display string) *ToolError {
	raw := display
	if err != nil {
		raw = fmt.Sprintf("%s: %v", display, err)
	}
	return &ToolError{Kind: kind, Display: display, Raw: raw, Err: err}
}

// Invalid is shorthand for a parameter validation failure.
func Invalid(format string, args ...any) *ToolError {
	return Newf(KindInvalidParams, format, args...)
}

// KindOf returns the kind attached anywhere in err's chain, or the kind
// derived from an OS error when none was attached.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.Kind != KindUnknown {
		return toolErr.Kind
	}
	return ClassifyIO(err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the ToolError from err's chain.
func As(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ClassifyIO maps OS-level failures onto the closed kind set. Errors that do
// not correspond to a known errno return KindUnknown.
func ClassifyIO(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return KindFileNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		return KindNoSpaceLeft
	case errors.Is(err, syscall.EISDIR):
		return KindTargetIsDirectory
	}

	// Some wrappers lose the errno; fall back to the message text.
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "no such file or directory"):
		return KindFileNotFound
	case strings.Contains(lower, "permission denied"):
		return KindPermissionDenied
	case strings.Contains(lower, "no space left on device"):
		return KindNoSpaceLeft
	case strings.Contains(lower, "is a directory"):
		return KindTargetIsDirectory
	}
	return KindUnknown
}
