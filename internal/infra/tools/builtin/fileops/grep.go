package fileops

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"fsgate/internal/infra/tools/builtin/search"
	fserrors "fsgate/internal/shared/errors"
)

// GrepRequest searches file contents with a regular expression.
type GrepRequest struct {
	Pattern string
	Path    string
	Include string
}

// GrepDirResult holds the matches found under one search directory.
type GrepDirResult struct {
	Dir      string         `json:"dir"`
	Strategy string         `json:"strategy"`
	Matches  []search.Match `json:"matches"`
}

// GrepResult aggregates matches over every searched directory.
type GrepResult struct {
	Pattern string          `json:"pattern"`
	Include string          `json:"include,omitempty"`
	Dirs    []GrepDirResult `json:"dirs"`
}

// SearchFileContent runs the search cascade in the requested directory, or in
// every workspace root.
func (e *Engine) SearchFileContent(ctx context.Context, req GrepRequest) (GrepResult, error) {
	pattern := req.Pattern
	if strings.TrimSpace(pattern) == "" {
		return GrepResult{}, fserrors.Invalid("The 'pattern' parameter cannot be empty.")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return GrepResult{}, fserrors.Invalid("Invalid regular expression pattern provided: %s. Error: %v", pattern, err)
	}
	dirs, err := e.searchDirs(ctx, req.Path)
	if err != nil {
		return GrepResult{}, err
	}

	result := GrepResult{Pattern: pattern, Include: req.Include}
	for _, dir := range dirs {
		outcome, err := e.searcher.Search(ctx, search.Request{Pattern: pattern, Dir: dir, Include: req.Include})
		if err != nil {
			if ctx.Err() != nil {
				return GrepResult{}, ctx.Err()
			}
			return GrepResult{}, err
		}
		matches := outcome.Matches
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].FilePath != matches[j].FilePath {
				return matches[i].FilePath < matches[j].FilePath
			}
			return matches[i].LineNumber < matches[j].LineNumber
		})
		e.logger.Debug("grep %q in %s: %d matches via %s", pattern, dir, len(matches), outcome.Strategy)
		result.Dirs = append(result.Dirs, GrepDirResult{Dir: dir, Strategy: outcome.Strategy, Matches: matches})
	}
	return result, nil
}

// Total counts matches over all directories.
func (r GrepResult) Total() int {
	total := 0
	for _, d := range r.Dirs {
		total += len(d.Matches)
	}
	return total
}

// Summary renders matches grouped by file.
func (r GrepResult) Summary() string {
	dirs := make([]string, len(r.Dirs))
	for i, d := range r.Dirs {
		dirs[i] = d.Dir
	}
	location := fmt.Sprintf("in path %q", strings.Join(dirs, ", "))
	filter := ""
	if r.Include != "" {
		filter = fmt.Sprintf(" (filter: %q)", r.Include)
	}

	total := r.Total()
	if total == 0 {
		return fmt.Sprintf("No matches found for pattern %q %s%s.", r.Pattern, location, filter)
	}

	var b strings.Builder
	noun := "matches"
	if total == 1 {
		noun = "match"
	}
	fmt.Fprintf(&b, "Found %d %s for pattern %q %s%s:\n---\n", total, noun, r.Pattern, location, filter)
	multi := len(r.Dirs) > 1
	for _, d := range r.Dirs {
		current := ""
		for _, m := range d.Matches {
			name := m.FilePath
			if multi {
				name = filepath.ToSlash(filepath.Join(filepath.Base(d.Dir), m.FilePath))
			}
			if name != current {
				if current != "" {
					b.WriteString("---\n")
				}
				fmt.Fprintf(&b, "File: %s\n", name)
				current = name
			}
			fmt.Fprintf(&b, "L%d: %s\n", m.LineNumber, strings.TrimSpace(m.Line))
		}
		if current != "" {
			b.WriteString("---\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
