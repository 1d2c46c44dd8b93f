package filediff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	contextLines       = 3
	noNewlineMarker    = "\\ No newline at end of file\n"
	originalLabel      = "Current"
	proposedLabel      = "Proposed"
	maxDiffContentSize = 10 * 1024 * 1024
)

// DiffStat splits a change into what the model proposed (original vs
// proposed) and what a human changed afterwards (proposed vs final).
type DiffStat struct {
	ModelAddedLines   int `json:"model_added_lines"`
	ModelRemovedLines int `json:"model_removed_lines"`
	ModelAddedChars   int `json:"model_added_chars"`
	ModelRemovedChars int `json:"model_removed_chars"`
	UserAddedLines    int `json:"user_added_lines"`
	UserRemovedLines  int `json:"user_removed_lines"`
	UserAddedChars    int `json:"user_added_chars"`
	UserRemovedChars  int `json:"user_removed_chars"`
}

// Result bundles the human-facing patch with its statistics.
type Result struct {
	Patch string   `json:"patch"`
	Stat  DiffStat `json:"diff_stat"`
}

// Summarize builds the unified patch (original to final) and the diff stat
// for a change to fileName.
func Summarize(fileName, original, proposed, final string) Result {
	return Result{
		Patch: Unified(fileName, original, final),
		Stat:  Stat(original, proposed, final),
	}
}

// Unified returns a unified diff from original to updated. Applying the
// patch to original reproduces updated byte for byte, including a missing
// trailing newline. Identical inputs produce an empty patch.
func Unified(fileName, original, updated string) string {
	if original == updated {
		return ""
	}
	if len(original) > maxDiffContentSize || len(updated) > maxDiffContentSize {
		return fmt.Sprintf("--- %s\t%s\n+++ %s\t%s\n@@ Large file (>10MB), diff skipped for performance @@\n",
			fileName, originalLabel, fileName, proposedLabel)
	}

	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitPatchLines(original),
		B:        splitPatchLines(updated),
		FromFile: fileName,
		FromDate: originalLabel,
		ToFile:   fileName,
		ToDate:   proposedLabel,
		Context:  contextLines,
	})
	if err != nil {
		// difflib only fails on writer errors, which a strings.Builder never returns.
		return ""
	}
	return patch
}

// splitPatchLines keeps line terminators so the patch is exact. A final line
// without a newline carries the conventional marker on its own line.
func splitPatchLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n" + noNewlineMarker
	return lines
}

// Stat computes line and character deltas for the model and user portions of
// a change.
func Stat(original, proposed, final string) DiffStat {
	var stat DiffStat
	stat.ModelAddedLines, stat.ModelRemovedLines, stat.ModelAddedChars, stat.ModelRemovedChars = lineDelta(original, proposed)
	stat.UserAddedLines, stat.UserRemovedLines, stat.UserAddedChars, stat.UserRemovedChars = lineDelta(proposed, final)
	return stat
}

func lineDelta(from, to string) (addedLines, removedLines, addedChars, removedChars int) {
	if from == to {
		return 0, 0, 0, 0
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			lines, chars := countLines(d.Text)
			addedLines += lines
			addedChars += chars
		case diffmatchpatch.DiffDelete:
			lines, chars := countLines(d.Text)
			removedLines += lines
			removedChars += chars
		}
	}
	return addedLines, removedLines, addedChars, removedChars
}

// countLines counts the lines in a line-aligned chunk and their characters,
// excluding terminators.
func countLines(text string) (lines, chars int) {
	if text == "" {
		return 0, 0
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		lines++
		chars += len([]rune(strings.TrimSuffix(line, "\n")))
	}
	return lines, chars
}

// Summary renders the stat the way the approval dialog shows it.
func (s DiffStat) Summary() string {
	if s.ModelAddedLines == 0 && s.ModelRemovedLines == 0 && s.UserAddedLines == 0 && s.UserRemovedLines == 0 {
		return "No changes"
	}
	parts := []string{fmt.Sprintf("+%d -%d lines", s.ModelAddedLines, s.ModelRemovedLines)}
	if s.UserAddedLines > 0 || s.UserRemovedLines > 0 {
		parts = append(parts, fmt.Sprintf("user edits +%d -%d lines", s.UserAddedLines, s.UserRemovedLines))
	}
	return strings.Join(parts, ", ")
}

// HasUserEdits reports whether the final content differs from the proposal.
func (s DiffStat) HasUserEdits() bool {
	return s.UserAddedLines+s.UserRemovedLines+s.UserAddedChars+s.UserRemovedChars > 0
}

// Colorize renders a unified patch with terminal colours.
func Colorize(patch string) string {
	if patch == "" {
		return ""
	}
	var out strings.Builder
	for _, line := range strings.SplitAfter(patch, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			out.WriteString(color.New(color.Bold).Sprint(line))
		case strings.HasPrefix(line, "@@"):
			out.WriteString(color.CyanString("%s", line))
		case strings.HasPrefix(line, "+"):
			out.WriteString(color.GreenString("%s", line))
		case strings.HasPrefix(line, "-"):
			out.WriteString(color.RedString("%s", line))
		default:
			out.WriteString(line)
		}
	}
	return out.String()
}
