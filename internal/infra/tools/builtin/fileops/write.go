package fileops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"fsgate/internal/domain/filediff"
	"fsgate/internal/infra/tools/builtin/shared"
	fserrors "fsgate/internal/shared/errors"
)

// WriteRequest replaces (or creates) a file with Content. When the user
// edited the proposal before approving, ModifiedByUser is set and
// AIProposedContent holds what the model originally proposed.
type WriteRequest struct {
	FilePath          string
	Content           string
	ModifiedByUser    bool
	AIProposedContent string
}

// EditRequest replaces exact occurrences of OldString. An empty OldString on
// a missing file creates it. ExpectedReplacements of zero means one.
type EditRequest struct {
	FilePath             string
	OldString            string
	NewString            string
	ExpectedReplacements int
	ModifiedByUser       bool
	AIProposedContent    string
}

// EditOutcome is the result contract shared by writes and edits.
type EditOutcome struct {
	Success         bool              `json:"success"`
	FilePath        string            `json:"filePath"`
	OriginalContent string            `json:"originalContent"`
	NewContent      string            `json:"newContent"`
	Diff            string            `json:"diff"`
	Replacements    int               `json:"replacements"`
	IsNewFile       bool              `json:"isNewFile"`
	DiffStat        filediff.DiffStat `json:"diffStat"`
	Message         string            `json:"message"`
}

// WriteFile writes req.Content and reports the diff against what was there.
func (e *Engine) WriteFile(ctx context.Context, req WriteRequest) (EditOutcome, error) {
	outcome, err := e.PreviewWrite(ctx, req)
	if err != nil {
		return EditOutcome{}, err
	}
	if err := e.fs.WriteTextFile(ctx, outcome.FilePath, outcome.NewContent); err != nil {
		return EditOutcome{}, writeError(outcome.FilePath, err)
	}
	outcome.Success = true
	if outcome.IsNewFile {
		outcome.Message = "Successfully created and wrote to new file: " + outcome.FilePath + "."
	} else {
		outcome.Message = "Successfully overwrote file: " + outcome.FilePath + "."
	}
	if req.ModifiedByUser {
		outcome.Message += " User modified the `content` to be: " + req.Content
	}
	return outcome, nil
}

// PreviewWrite computes what WriteFile would produce without touching disk.
func (e *Engine) PreviewWrite(ctx context.Context, req WriteRequest) (EditOutcome, error) {
	path, err := e.resolvePath("file_path", req.FilePath)
	if err != nil {
		return EditOutcome{}, err
	}
	original, exists, err := e.readExisting(ctx, path)
	if err != nil {
		return EditOutcome{}, err
	}

	proposed := req.Content
	if req.ModifiedByUser {
		proposed = req.AIProposedContent
	}
	return e.outcome(path, original, proposed, req.Content, !exists, 0), nil
}

// EditFile applies an exact-match replacement and writes the result.
func (e *Engine) EditFile(ctx context.Context, req EditRequest) (EditOutcome, error) {
	outcome, err := e.PreviewEdit(ctx, req)
	if err != nil {
		return EditOutcome{}, err
	}
	if err := e.fs.WriteTextFile(ctx, outcome.FilePath, outcome.NewContent); err != nil {
		return EditOutcome{}, writeError(outcome.FilePath, err)
	}
	outcome.Success = true
	if outcome.IsNewFile {
		outcome.Message = "Created new file: " + outcome.FilePath + " with provided content."
	} else {
		outcome.Message = fmt.Sprintf("Successfully modified file: %s (%s).", outcome.FilePath, shared.Plural(outcome.Replacements, "replacement"))
	}
	if req.ModifiedByUser {
		outcome.Message += " User modified the `new_string` content to be: " + req.NewString + "."
	}
	return outcome, nil
}

// PreviewEdit validates an edit and computes its outcome without writing.
func (e *Engine) PreviewEdit(ctx context.Context, req EditRequest) (EditOutcome, error) {
	path, err := e.resolvePath("file_path", req.FilePath)
	if err != nil {
		return EditOutcome{}, err
	}
	expected := req.ExpectedReplacements
	if expected < 0 {
		return EditOutcome{}, fserrors.Invalid("expected_replacements must be at least 1, got %d", expected)
	}
	if expected == 0 {
		expected = 1
	}

	current, exists, err := e.readExisting(ctx, path)
	if err != nil {
		return EditOutcome{}, err
	}
	oldString := normalizeLineEndings(req.OldString)
	newString := normalizeLineEndings(req.NewString)

	switch {
	case oldString == "" && !exists:
		proposed := newString
		if req.ModifiedByUser {
			proposed = req.AIProposedContent
		}
		return e.outcome(path, "", proposed, newString, true, 1), nil
	case oldString == "":
		return EditOutcome{}, fserrors.New(
			fserrors.KindAttemptToCreateExistingFile,
			"Failed to edit. Attempted to create a file that already exists.",
			"File already exists, cannot create: "+path,
		)
	case !exists:
		return EditOutcome{}, fserrors.New(
			fserrors.KindFileNotFound,
			"File not found. Cannot apply edit. Use an empty old_string to create a new file.",
			"File not found: "+path,
		)
	case oldString == newString:
		return EditOutcome{}, fserrors.New(
			fserrors.KindEditNoChange,
			"No changes to apply. The old_string and new_string are identical.",
			"No changes to apply. The old_string and new_string are identical in file: "+path,
		)
	}

	current = normalizeLineEndings(current)
	occurrences := strings.Count(current, oldString)
	if occurrences == 0 {
		return EditOutcome{}, fserrors.New(
			fserrors.KindEditNoOccurrenceFound,
			"Failed to edit, could not find the string to replace.",
			fmt.Sprintf("Failed to edit, 0 occurrences found for old_string in %s. No edits made. The exact text in old_string was not found. Ensure you're not escaping content incorrectly and check whitespace, indentation, and context. Use read_file tool to verify.", path),
		)
	}
	if occurrences != expected {
		return EditOutcome{}, fserrors.New(
			fserrors.KindEditExpectedOccurrenceMismatch,
			fmt.Sprintf("Failed to edit, expected %s but found %d.", shared.Plural(expected, "occurrence"), occurrences),
			fmt.Sprintf("Failed to edit, Expected %s but found %d for old_string in file: %s", shared.Plural(expected, "occurrence"), occurrences, path),
		)
	}

	updated := strings.ReplaceAll(current, oldString, newString)
	if updated == current {
		return EditOutcome{}, fserrors.New(
			fserrors.KindEditNoChange,
			"No changes to apply. The new content is identical to the current content.",
			"No changes to apply. The new content is identical to the current content in file: "+path,
		)
	}

	proposed := updated
	if req.ModifiedByUser {
		proposed = req.AIProposedContent
	}
	return e.outcome(path, current, proposed, updated, false, occurrences), nil
}

// readExisting returns the current content, treating a missing file as empty.
func (e *Engine) readExisting(ctx context.Context, path string) (string, bool, error) {
	if info, err := e.fs.Stat(ctx, path); err == nil && info.IsDir() {
		return "", false, fserrors.New(
			fserrors.KindTargetIsDirectory,
			"Path is a directory, not a file: "+path,
			"Path is a directory, not a file: "+path,
		)
	}
	content, err := e.fs.ReadTextFile(ctx, path)
	if err != nil {
		if fserrors.Is(err, fserrors.KindFileNotFound) {
			return "", false, nil
		}
		return "", false, readError(path, err)
	}
	return content, true, nil
}

func (e *Engine) outcome(path, original, proposed, final string, isNew bool, replacements int) EditOutcome {
	summary := filediff.Summarize(filepath.Base(path), original, proposed, final)
	return EditOutcome{
		FilePath:        path,
		OriginalContent: original,
		NewContent:      final,
		Diff:            summary.Patch,
		Replacements:    replacements,
		IsNewFile:       isNew,
		DiffStat:        summary.Stat,
	}
}

func writeError(path string, err error) error {
	switch fserrors.KindOf(err) {
	case fserrors.KindPermissionDenied:
		return &fserrors.ToolError{Kind: fserrors.KindPermissionDenied, Display: "Permission denied writing to file: " + path, Raw: fmt.Sprintf("Permission denied writing to file: %s (%v)", path, err), Err: err}
	case fserrors.KindNoSpaceLeft:
		return &fserrors.ToolError{Kind: fserrors.KindNoSpaceLeft, Display: "No space left on device: " + path, Raw: fmt.Sprintf("No space left on device: %s (%v)", path, err), Err: err}
	case fserrors.KindTargetIsDirectory:
		return &fserrors.ToolError{Kind: fserrors.KindTargetIsDirectory, Display: "Target is a directory, not a file: " + path, Raw: fmt.Sprintf("Target is a directory, not a file: %s (%v)", path, err), Err: err}
	}
	return fserrors.Wrap(fserrors.KindWriteFailure, err, "Error writing to file "+path)
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
