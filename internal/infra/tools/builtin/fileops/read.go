package fileops

import (
	"context"
	"fmt"
	"strings"

	fserrors "fsgate/internal/shared/errors"
)

// ReadRequest windows the file when Offset or Limit is set. Offset is the
// 0-based first line.
type ReadRequest struct {
	Path   string
	Offset *int
	Limit  *int
}

// ReadResult is the content of one file read.
type ReadResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	IsTruncated bool   `json:"isTruncated"`
	// LinesShown is the 1-based inclusive range returned when windowed.
	LinesShown [2]int `json:"linesShown"`
	TotalLines int    `json:"totalLines"`
}

// ReadFile reads a text file, optionally windowed by line.
func (e *Engine) ReadFile(ctx context.Context, req ReadRequest) (ReadResult, error) {
	path, err := e.resolvePath("path", req.Path)
	if err != nil {
		return ReadResult{}, err
	}
	if req.Offset != nil && *req.Offset < 0 {
		return ReadResult{}, fserrors.Invalid("Offset must be a non-negative number")
	}
	if req.Limit != nil && *req.Limit <= 0 {
		return ReadResult{}, fserrors.Invalid("Limit must be a positive number")
	}

	content, err := e.fs.ReadTextFile(ctx, path)
	if err != nil {
		return ReadResult{}, readError(path, err)
	}

	lines := strings.Split(content, "\n")
	result := ReadResult{Path: path, Content: content, TotalLines: len(lines)}
	if req.Offset == nil && req.Limit == nil {
		result.LinesShown = [2]int{1, len(lines)}
		return result, nil
	}

	start := 0
	if req.Offset != nil {
		start = min(*req.Offset, len(lines))
	}
	end := len(lines)
	if req.Limit != nil {
		end = min(start+*req.Limit, len(lines))
	}
	result.Content = strings.Join(lines[start:end], "\n")
	result.IsTruncated = end < len(lines)
	result.LinesShown = [2]int{start + 1, end}
	return result, nil
}

func readError(path string, err error) error {
	switch fserrors.KindOf(err) {
	case fserrors.KindFileNotFound:
		return &fserrors.ToolError{Kind: fserrors.KindFileNotFound, Display: "File not found.", Raw: "File not found: " + path, Err: err}
	case fserrors.KindPermissionDenied:
		return &fserrors.ToolError{Kind: fserrors.KindPermissionDenied, Display: "Permission denied.", Raw: "Permission denied reading file: " + path, Err: err}
	}
	return fserrors.Wrap(fserrors.KindReadFailure, err, "Error reading file "+path)
}

// Summary renders the model-facing text of a read, noting the window when
// the file was truncated.
func (r ReadResult) Summary() string {
	if !r.IsTruncated {
		return r.Content
	}
	return fmt.Sprintf(
		"IMPORTANT: The file content has been truncated.\n"+
			"Status: Showing lines %d-%d of %d total lines.\n"+
			"Action: To read more of the file, use offset: %d.\n\n"+
			"--- FILE CONTENT (truncated) ---\n%s",
		r.LinesShown[0], r.LinesShown[1], r.TotalLines, r.LinesShown[1], r.Content,
	)
}
