package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fsgate/internal/infra/tools/builtin/shared"
)

const (
	gitGrepName    = "git_grep"
	systemGrepName = "system_grep"
)

// GitGrep searches tracked and untracked files of a git work tree.
type GitGrep struct {
	runner CommandRunner
}

func NewGitGrep(runner CommandRunner) *GitGrep {
	return &GitGrep{runner: runner}
}

func (g *GitGrep) Name() string { return gitGrepName }

func (g *GitGrep) Available(ctx context.Context, req Request) bool {
	if _, err := g.runner.LookPath("git"); err != nil {
		return false
	}
	return isGitRepository(req.Dir)
}

func (g *GitGrep) Search(ctx context.Context, req Request) ([]Match, error) {
	args := []string{"grep", "--untracked", "-n", "-E", "--ignore-case", "-e", req.Pattern}
	if req.Include != "" {
		args = append(args, "--", req.Include)
	}
	res, err := g.runner.Run(ctx, req.Dir, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git grep: %w", err)
	}
	switch res.ExitCode {
	case 0:
		return parseGrepOutput(string(res.Stdout)), nil
	case 1:
		return nil, nil
	default:
		return nil, fmt.Errorf("git grep exited with code %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
}

// SystemGrep runs the host grep recursively.
type SystemGrep struct {
	runner CommandRunner
}

func NewSystemGrep(runner CommandRunner) *SystemGrep {
	return &SystemGrep{runner: runner}
}

func (s *SystemGrep) Name() string { return systemGrepName }

func (s *SystemGrep) Available(ctx context.Context, req Request) bool {
	_, err := s.runner.LookPath("grep")
	return err == nil
}

func (s *SystemGrep) Search(ctx context.Context, req Request) ([]Match, error) {
	args := []string{"-r", "-n", "-H", "-E", "-i"}
	for _, dir := range shared.DefaultIgnoreDirs {
		args = append(args, "--exclude-dir="+dir)
	}
	if req.Include != "" {
		args = append(args, "--include="+req.Include)
	}
	args = append(args, "-e", req.Pattern, ".")

	res, err := s.runner.Run(ctx, req.Dir, "grep", args...)
	if err != nil {
		return nil, fmt.Errorf("grep: %w", err)
	}
	switch res.ExitCode {
	case 0:
		return parseGrepOutput(string(res.Stdout)), nil
	case 1:
		return nil, nil
	}
	if remaining := filterGrepNoise(string(res.Stderr)); remaining != "" {
		return nil, fmt.Errorf("grep exited with code %d: %s", res.ExitCode, remaining)
	}
	// Unreadable entries only; whatever grep printed is still valid.
	return parseGrepOutput(string(res.Stdout)), nil
}

// filterGrepNoise drops the stderr lines grep emits for unreadable files and
// directories.
func filterGrepNoise(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "Permission denied") || strings.Contains(line, "Is a directory") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// parseGrepOutput parses "path:line:content" records. Paths are relative to
// the directory the command ran in.
func parseGrepOutput(output string) []Match {
	var matches []Match
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		first := strings.Index(line, ":")
		if first <= 0 {
			continue
		}
		rest := line[first+1:]
		second := strings.Index(rest, ":")
		if second <= 0 {
			continue
		}
		lineNumber, err := strconv.Atoi(rest[:second])
		if err != nil || lineNumber < 1 {
			continue
		}
		file := filepath.ToSlash(filepath.Clean(line[:first]))
		matches = append(matches, Match{
			FilePath:   strings.TrimPrefix(file, "./"),
			LineNumber: lineNumber,
			Line:       rest[second+1:],
		})
	}
	return matches
}

// isGitRepository walks up from dir looking for a .git entry.
func isGitRepository(dir string) bool {
	current := filepath.Clean(dir)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return false
		}
		current = parent
	}
}
