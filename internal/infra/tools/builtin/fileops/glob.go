package fileops

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	fserrors "fsgate/internal/shared/errors"
)

// recencyThreshold is how recent a file must be to sort ahead of the rest.
const recencyThreshold = 24 * time.Hour

// GlobRequest finds files by pattern. Path, when set, limits the search to
// one absolute directory; otherwise every workspace root is searched.
type GlobRequest struct {
	Pattern             string
	Path                string
	CaseSensitive       bool
	RespectGitIgnore    *bool
	RespectGeminiIgnore *bool
}

// GlobEntry is one matched file.
type GlobEntry struct {
	Path         string    `json:"path"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// GlobResult lists matches in recency order and reports why files were left
// out.
type GlobResult struct {
	Pattern       string      `json:"pattern"`
	SearchDirs    []string    `json:"searchDirs"`
	Files         []GlobEntry `json:"files"`
	GitIgnored    int         `json:"gitIgnored"`
	GeminiIgnored int         `json:"geminiIgnored"`
}

// GlobSearch finds files matching a doublestar pattern.
func (e *Engine) GlobSearch(ctx context.Context, req GlobRequest) (GlobResult, error) {
	pattern := strings.TrimSpace(req.Pattern)
	if pattern == "" {
		return GlobResult{}, fserrors.Invalid("The 'pattern' parameter cannot be empty.")
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return GlobResult{}, fserrors.Invalid("Invalid glob pattern: %s", pattern)
	}

	dirs, err := e.searchDirs(ctx, req.Path)
	if err != nil {
		return GlobResult{}, err
	}

	respectGit := req.RespectGitIgnore == nil || *req.RespectGitIgnore
	respectGemini := req.RespectGeminiIgnore == nil || *req.RespectGeminiIgnore
	result := GlobResult{Pattern: pattern, SearchDirs: dirs}
	seen := make(map[string]struct{})

	for _, dir := range dirs {
		dirPattern := filepath.ToSlash(pattern)
		if filepath.IsAbs(pattern) {
			rel, relErr := filepath.Rel(dir, pattern)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			dirPattern = filepath.ToSlash(rel)
		}
		root := e.rootFor(dir)
		err := walkGlob(ctx, dir, dirPattern, req.CaseSensitive, func(f walkedFile) {
			if _, dup := seen[f.Abs]; dup {
				return
			}
			seen[f.Abs] = struct{}{}
			if respectGit && e.ignores.IsGitIgnored(root, f.Abs) {
				result.GitIgnored++
				return
			}
			if respectGemini && e.ignores.IsGeminiIgnored(root, f.Abs) {
				result.GeminiIgnored++
				return
			}
			result.Files = append(result.Files, GlobEntry{Path: f.Abs, ModifiedTime: f.Info.ModTime()})
		})
		if err != nil {
			if ctx.Err() != nil {
				return GlobResult{}, ctx.Err()
			}
			return GlobResult{}, fserrors.Wrap(fserrors.KindGlobFailure, err, "Error during glob search operation")
		}
	}

	sortByRecency(result.Files, e.now(), recencyThreshold)
	return result, nil
}

// sortByRecency orders files touched within threshold first, newest first,
// then everything else alphabetically by path.
func sortByRecency(files []GlobEntry, now time.Time, threshold time.Duration) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		aRecent := now.Sub(a.ModifiedTime) < threshold
		bRecent := now.Sub(b.ModifiedTime) < threshold
		switch {
		case aRecent && bRecent:
			if !a.ModifiedTime.Equal(b.ModifiedTime) {
				return a.ModifiedTime.After(b.ModifiedTime)
			}
			return a.Path < b.Path
		case aRecent:
			return true
		case bRecent:
			return false
		default:
			return a.Path < b.Path
		}
	})
}

// searchDirs resolves the optional directory parameter into the list of
// directories to search.
func (e *Engine) searchDirs(ctx context.Context, path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return e.workspace.Directories(), nil
	}
	dir, err := e.resolvePath("path", path)
	if err != nil {
		return nil, err
	}
	info, err := e.fs.Stat(ctx, dir)
	if err != nil {
		if fserrors.Is(err, fserrors.KindFileNotFound) {
			return nil, fserrors.Invalid("Search path does not exist %s", dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fserrors.Invalid("Search path is not a directory: %s", dir)
	}
	return []string{dir}, nil
}

// Summary renders the match list for the model.
func (r GlobResult) Summary() string {
	where := strings.Join(r.SearchDirs, ", ")
	if len(r.Files) == 0 {
		msg := fmt.Sprintf("No files found matching pattern %q within %s", r.Pattern, where)
		return msg + r.ignoredNote()
	}
	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	return fmt.Sprintf("Found %d file(s) matching %q within %s%s, sorted by modification time (newest first):\n%s",
		len(r.Files), r.Pattern, where, r.ignoredNote(), strings.Join(paths, "\n"))
}

func (r GlobResult) ignoredNote() string {
	var parts []string
	if r.GitIgnored > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) were git-ignored", r.GitIgnored))
	}
	if r.GeminiIgnored > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) were gemini-ignored", r.GeminiIgnored))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
