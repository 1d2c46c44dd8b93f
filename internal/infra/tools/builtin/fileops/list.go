package fileops

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	fserrors "fsgate/internal/shared/errors"
)

// ListRequest lists one directory. RespectGitIgnore defaults to true.
type ListRequest struct {
	Path             string
	Ignore           []string
	RespectGitIgnore *bool
}

// DirEntry is one listed entry. Size is zero for directories.
type DirEntry struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsDirectory  bool      `json:"isDirectory"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// ListResult is the sorted listing plus how many entries .gitignore hid.
type ListResult struct {
	Path       string     `json:"path"`
	Entries    []DirEntry `json:"entries"`
	GitIgnored int        `json:"gitIgnored"`
}

// ListDirectory lists path, directories first.
func (e *Engine) ListDirectory(ctx context.Context, req ListRequest) (ListResult, error) {
	path, err := e.resolvePath("path", req.Path)
	if err != nil {
		return ListResult{}, err
	}
	ignore, err := compileIgnoreGlobs(req.Ignore)
	if err != nil {
		return ListResult{}, err
	}

	info, err := e.fs.Stat(ctx, path)
	if err != nil {
		if fserrors.Is(err, fserrors.KindFileNotFound) {
			return ListResult{}, fserrors.New(fserrors.KindFileNotFound, "Directory not found.", "Directory not found or inaccessible: "+path)
		}
		return ListResult{}, fserrors.Wrap(fserrors.KindListDirectoryFailure, err, "Failed to list directory "+path)
	}
	if !info.IsDir() {
		return ListResult{}, fserrors.New(fserrors.KindPathIsNotDirectory, "Path is not a directory.", "Path is not a directory: "+path)
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	dirEntries, err := e.fs.ReadDir(ctx, path)
	if err != nil {
		return ListResult{}, fserrors.Wrap(fserrors.KindListDirectoryFailure, err, "Failed to list directory "+path)
	}

	respectGit := req.RespectGitIgnore == nil || *req.RespectGitIgnore
	root := e.rootFor(path)
	result := ListResult{Path: path, Entries: make([]DirEntry, 0, len(dirEntries))}
	for _, entry := range dirEntries {
		name := entry.Name()
		if matchesAny(ignore, name) {
			continue
		}
		full := filepath.Join(path, name)
		if respectGit && e.ignores.IsGitIgnored(root, full) {
			result.GitIgnored++
			continue
		}
		entryInfo, err := entry.Info()
		if err != nil {
			e.logger.Debug("ls: skipping %s: %v", full, err)
			continue
		}
		size := entryInfo.Size()
		if entry.IsDir() {
			size = 0
		}
		result.Entries = append(result.Entries, DirEntry{
			Name:         name,
			Path:         full,
			IsDirectory:  entry.IsDir(),
			Size:         size,
			ModifiedTime: entryInfo.ModTime(),
		})
	}

	sort.Slice(result.Entries, func(i, j int) bool {
		a, b := result.Entries[i], result.Entries[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		return a.Name < b.Name
	})
	return result, nil
}

// Summary renders the listing for the model.
func (r ListResult) Summary() string {
	if len(r.Entries) == 0 {
		msg := fmt.Sprintf("Directory %s is empty.", r.Path)
		if r.GitIgnored > 0 {
			msg += fmt.Sprintf(" (%d git-ignored)", r.GitIgnored)
		}
		return msg
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Directory listing for %s:\n", r.Path)
	for i, entry := range r.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if entry.IsDirectory {
			b.WriteString("[DIR] ")
		}
		b.WriteString(entry.Name)
	}
	if r.GitIgnored > 0 {
		fmt.Fprintf(&b, "\n\n(%d git-ignored)", r.GitIgnored)
	}
	return b.String()
}

// compileIgnoreGlobs turns simple globs into anchored regular expressions:
// "*" matches any run of characters and "?" exactly one.
func compileIgnoreGlobs(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		var b strings.Builder
		b.WriteString("^")
		for _, r := range pattern {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re, err := regexp.Compile(b.String())
		if err != nil {
			return nil, fserrors.Invalid("Invalid ignore pattern %q: %v", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchesAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
