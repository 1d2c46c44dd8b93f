package shared

import "path"

// DefaultIgnoreDirs are pruned from every walk performed by glob search,
// read-many and the grep strategies.
var DefaultIgnoreDirs = []string{
	"node_modules",
	".git",
	"bower_components",
	"dist",
	"build",
	"coverage",
	"out",
	"target",
	".next",
}

// DefaultIgnoreFilePatterns are matched against file base names.
var DefaultIgnoreFilePatterns = []string{
	"*.log",
	".DS_Store",
	"Thumbs.db",
}

var defaultIgnoreDirSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(DefaultIgnoreDirs))
	for _, dir := range DefaultIgnoreDirs {
		set[dir] = struct{}{}
	}
	return set
}()

// IsDefaultIgnoredDir reports whether a directory with this base name is
// skipped during walks.
func IsDefaultIgnoredDir(name string) bool {
	_, ok := defaultIgnoreDirSet[name]
	return ok
}

// IsDefaultIgnoredFile reports whether a file with this base name is skipped.
func IsDefaultIgnoredFile(name string) bool {
	for _, pattern := range DefaultIgnoreFilePatterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
