package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	ignore "github.com/sabhiram/go-gitignore"
)

const (
	GitIgnoreFile    = ".gitignore"
	GeminiIgnoreFile = ".geminiignore"

	defaultIgnoreCacheSize = 64
)

// IgnoreFilter answers .gitignore / .geminiignore questions for paths under a
// root. Compiled ignore files are cached per root and recompiled when the
// file's modification time changes.
type IgnoreFilter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *compiledIgnore]
}

type compiledIgnore struct {
	modTime time.Time
	exists  bool
	matcher *ignore.GitIgnore
}

// NewIgnoreFilter returns a filter caching up to size compiled files.
func NewIgnoreFilter(size int) *IgnoreFilter {
	if size <= 0 {
		size = defaultIgnoreCacheSize
	}
	cache, err := lru.New[string, *compiledIgnore](size)
	if err != nil {
		// lru.New only rejects non-positive sizes.
		panic(err)
	}
	return &IgnoreFilter{cache: cache}
}

// IsGitIgnored reports whether absPath is excluded by root's .gitignore or
// lives under the .git directory.
func (f *IgnoreFilter) IsGitIgnored(root, absPath string) bool {
	rel, ok := relativeSlash(root, absPath)
	if !ok {
		return false
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	return f.matches(root, GitIgnoreFile, rel)
}

// IsGeminiIgnored reports whether absPath is excluded by root's .geminiignore.
func (f *IgnoreFilter) IsGeminiIgnored(root, absPath string) bool {
	rel, ok := relativeSlash(root, absPath)
	if !ok {
		return false
	}
	return f.matches(root, GeminiIgnoreFile, rel)
}

func (f *IgnoreFilter) matches(root, fileName, rel string) bool {
	if f == nil {
		return false
	}
	matcher := f.load(filepath.Join(root, fileName))
	if matcher == nil {
		return false
	}
	return matcher.MatchesPath(rel)
}

func (f *IgnoreFilter) load(path string) *ignore.GitIgnore {
	info, statErr := os.Stat(path)

	f.mu.Lock()
	defer f.mu.Unlock()

	cached, ok := f.cache.Get(path)
	if statErr != nil {
		if !ok || cached.exists {
			f.cache.Add(path, &compiledIgnore{})
		}
		return nil
	}
	if ok && cached.exists && cached.modTime.Equal(info.ModTime()) {
		return cached.matcher
	}

	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		f.cache.Add(path, &compiledIgnore{})
		return nil
	}
	f.cache.Add(path, &compiledIgnore{modTime: info.ModTime(), exists: true, matcher: matcher})
	return matcher
}

func relativeSlash(root, absPath string) (string, bool) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
