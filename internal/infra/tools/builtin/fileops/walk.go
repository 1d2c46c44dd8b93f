package fileops

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fsgate/internal/infra/tools/builtin/shared"
)

// walkedFile is a regular file found under a walk base.
type walkedFile struct {
	Abs  string
	Rel  string
	Info fs.FileInfo
}

// walkGlob visits regular files below base whose slash-separated relative
// path matches pattern. Default-ignored directories are pruned.
func walkGlob(ctx context.Context, base, pattern string, caseSensitive bool, visit func(walkedFile)) error {
	if !caseSensitive {
		pattern = strings.ToLower(pattern)
	}
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == base {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != base && shared.IsDefaultIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || shared.IsDefaultIgnoredFile(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		candidate := rel
		if !caseSensitive {
			candidate = strings.ToLower(rel)
		}
		if ok, _ := doublestar.Match(pattern, candidate); !ok {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		visit(walkedFile{Abs: path, Rel: rel, Info: info})
		return nil
	})
}

// splitGlob separates an absolute glob into the deepest literal directory
// and the pattern relative to it.
func splitGlob(pattern string) (base, rel string) {
	slashed := filepath.ToSlash(filepath.Clean(pattern))
	base, rel = doublestar.SplitPattern(slashed)
	return filepath.FromSlash(base), rel
}

// literalBase returns the part of an absolute pattern that names a fixed
// location: the pattern itself when it has no glob syntax.
func literalBase(pattern string) string {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern
	}
	base, _ := splitGlob(pattern)
	return base
}

// anyDepth makes a separator-free pattern match base names at any depth.
func anyDepth(pattern string) string {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if strings.Contains(pattern, "/") {
		return pattern
	}
	return "**/" + pattern
}
