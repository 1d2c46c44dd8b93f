package tools

import (
	"context"

	fserrors "fsgate/internal/shared/errors"
)

// Tool names exposed to agents.
const (
	NameReadFile      = "read_file"
	NameWriteFile     = "write_file"
	NameReplace       = "replace"
	NameReadManyFiles = "read_many_files"
	NameListDirectory = "list_directory"
	NameGlob          = "glob"
	NameSearchContent = "search_file_content"
)

// Executor runs one tool. Failures are reported inside the Result, never as
// a Go error, so callers always have an envelope to forward.
type Executor interface {
	Definition() Definition
	Execute(ctx context.Context, args map[string]any) Result
}

// Result is the uniform envelope every file tool returns: text for the model,
// a display string for humans, and a typed error when the call failed.
type Result struct {
	LLMContent    string         `json:"llmContent"`
	ReturnDisplay string         `json:"returnDisplay"`
	FileDiff      *FileDiff      `json:"fileDiff,omitempty"`
	Error         *ResultError   `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ResultError is the machine-readable half of a failure.
type ResultError struct {
	Message string        `json:"message"`
	Type    fserrors.Kind `json:"type"`
}

// FileDiff is the structured display for write and edit results.
type FileDiff struct {
	FileName        string `json:"fileName"`
	Diff            string `json:"fileDiff"`
	OriginalContent string `json:"originalContent"`
	NewContent      string `json:"newContent"`
	DiffStat        any    `json:"diffStat,omitempty"`
}

// Failed reports whether the envelope carries an error.
func (r Result) Failed() bool {
	return r.Error != nil
}

// ErrorResult converts err into an envelope. ToolErrors keep their display
// and raw renderings; anything else is reported verbatim.
func ErrorResult(err error) Result {
	if err == nil {
		return Result{}
	}
	if toolErr, ok := fserrors.As(err); ok {
		return Result{
			LLMContent:    toolErr.Raw,
			ReturnDisplay: "Error: " + toolErr.Display,
			Error:         &ResultError{Message: toolErr.Raw, Type: toolErr.Kind},
		}
	}
	return Result{
		LLMContent:    err.Error(),
		ReturnDisplay: "Error: " + err.Error(),
		Error:         &ResultError{Message: err.Error(), Type: fserrors.KindOf(err)},
	}
}

// Definition describes a tool for the model.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
	// Mutating tools are only reachable through the approval coordinator.
	Mutating bool `json:"mutating"`
}

// ParameterSchema is a JSON-schema object definition.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single JSON-schema property.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
}
