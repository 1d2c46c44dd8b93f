package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fsgate/internal/infra/tools/builtin/shared"
	"fsgate/internal/shared/logging"
)

const (
	scanName = "scan"

	binarySniffSize = 8 * 1024
	maxScanLineSize = 1024 * 1024
)

// Scan is the pure in-process fallback. It is always available.
type Scan struct {
	logger logging.Logger
}

func NewScan(logger logging.Logger) *Scan {
	return &Scan{logger: logging.OrNop(logger)}
}

func (s *Scan) Name() string { return scanName }

func (s *Scan) Available(context.Context, Request) bool { return true }

func (s *Scan) Search(ctx context.Context, req Request) ([]Match, error) {
	re, err := regexp.Compile("(?i)" + req.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	include := IncludeGlob(req.Include)
	if !doublestar.ValidatePattern(include) {
		return nil, fmt.Errorf("invalid include pattern %q", req.Include)
	}

	var matches []Match
	walkErr := filepath.WalkDir(req.Dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == req.Dir {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != req.Dir && shared.IsDefaultIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || shared.IsDefaultIgnoredFile(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(req.Dir, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(include, rel); !ok {
			return nil
		}

		fileMatches, readErr := scanFile(path, rel, re)
		if readErr != nil {
			// Files can vanish between the walk and the read.
			if !errors.Is(readErr, fs.ErrNotExist) {
				s.logger.Warn("scan: could not read %s: %v", path, readErr)
			}
			return nil
		}
		matches = append(matches, fileMatches...)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return matches, nil
}

func scanFile(path, rel string, re *regexp.Regexp) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	head, err := reader.Peek(binarySniffSize)
	if err != nil && len(head) == 0 {
		return nil, nil
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, nil
	}

	var matches []Match
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxScanLineSize)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if re.MatchString(line) {
			matches = append(matches, Match{FilePath: rel, LineNumber: lineNumber, Line: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}

// IncludeGlob turns a user include filter into a doublestar pattern relative
// to the search directory. Patterns without a separator match base names at
// any depth.
func IncludeGlob(include string) string {
	include = strings.TrimSpace(filepath.ToSlash(include))
	if include == "" {
		return "**/*"
	}
	include = strings.TrimPrefix(include, "./")
	if strings.Contains(include, "/") {
		return include
	}
	return "**/" + include
}
