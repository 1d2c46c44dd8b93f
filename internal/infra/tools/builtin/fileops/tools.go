package fileops

import (
	"context"
	"fmt"
	"path/filepath"

	tools "fsgate/internal/domain/tools"
	"fsgate/internal/infra/tools/builtin/shared"
	fserrors "fsgate/internal/shared/errors"
)

type toolFunc func(ctx context.Context, args map[string]any) (tools.Result, error)

// fileTool adapts one engine operation to the tool contract.
type fileTool struct {
	def tools.Definition
	run toolFunc
}

func (t *fileTool) Definition() tools.Definition { return t.def }

func (t *fileTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.run(ctx, args)
	if err != nil {
		return tools.ErrorResult(err)
	}
	return result
}

// NewTools returns the tool executors backed by engine.
func NewTools(engine *Engine) []tools.Executor {
	return []tools.Executor{
		engine.readFileTool(),
		engine.writeFileTool(),
		engine.replaceTool(),
		engine.readManyFilesTool(),
		engine.listDirectoryTool(),
		engine.globTool(),
		engine.searchContentTool(),
	}
}

func minimum(v float64) *float64 { return &v }

func (e *Engine) readFileTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameReadFile,
			Description: "Reads and returns the content of a specified file from the local filesystem. For text files, it can read specific line ranges with 'offset' and 'limit'.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"absolute_path": {Type: "string", Description: "The absolute path to the file to read. Relative paths are not supported."},
					"offset":        {Type: "number", Description: "Optional: the 0-based line number to start reading from. Requires 'limit' to be set for paging.", Minimum: minimum(0)},
					"limit":         {Type: "number", Description: "Optional: maximum number of lines to read.", Minimum: minimum(1)},
				},
				Required: []string{"absolute_path"},
			},
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			path := shared.StringArg(args, "absolute_path")
			if path == "" {
				path = shared.StringArg(args, "path")
			}
			res, err := e.ReadFile(ctx, ReadRequest{
				Path:   path,
				Offset: shared.IntPtrArg(args, "offset"),
				Limit:  shared.IntPtrArg(args, "limit"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			display := ""
			if res.IsTruncated {
				display = fmt.Sprintf("Read lines %d-%d of %d from %s", res.LinesShown[0], res.LinesShown[1], res.TotalLines, e.displayPath(res.Path))
			}
			return tools.Result{
				LLMContent:    res.Summary(),
				ReturnDisplay: display,
				Metadata: map[string]any{
					"path":         res.Path,
					"total_lines":  res.TotalLines,
					"is_truncated": res.IsTruncated,
					"lines_shown":  res.LinesShown,
				},
			}, nil
		},
	}
}

func (e *Engine) writeFileTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameWriteFile,
			Description: "Writes content to a specified file in the local filesystem. The user has the ability to modify `content` before it is written.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"file_path":           {Type: "string", Description: "The absolute path to the file to write to. Relative paths are not supported."},
					"content":             {Type: "string", Description: "The content to write to the file."},
					"modified_by_user":    {Type: "boolean", Description: "Set when the user edited the content before approving."},
					"ai_proposed_content": {Type: "string", Description: "The content originally proposed, when modified_by_user is set."},
				},
				Required: []string{"file_path", "content"},
			},
			Mutating: true,
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			if !shared.HasArg(args, "content") {
				return tools.Result{}, fserrors.Invalid("The 'content' parameter is required.")
			}
			outcome, err := e.WriteFile(ctx, WriteRequest{
				FilePath:          shared.StringArg(args, "file_path"),
				Content:           shared.StringArg(args, "content"),
				ModifiedByUser:    shared.BoolValue(shared.BoolPtrArg(args, "modified_by_user"), false),
				AIProposedContent: shared.StringArg(args, "ai_proposed_content"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			return outcomeResult(outcome), nil
		},
	}
}

func (e *Engine) replaceTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameReplace,
			Description: "Replaces text within a file. By default replaces a single occurrence; set `expected_replacements` to replace several. The `old_string` must match the file content exactly, including whitespace and indentation. An empty `old_string` creates a new file.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"file_path":             {Type: "string", Description: "The absolute path to the file to modify. Must start with '/'."},
					"old_string":            {Type: "string", Description: "The exact literal text to replace. Empty to create a new file."},
					"new_string":            {Type: "string", Description: "The exact literal text to replace old_string with."},
					"expected_replacements": {Type: "number", Description: "Number of replacements expected. Defaults to 1.", Minimum: minimum(1)},
					"modified_by_user":      {Type: "boolean", Description: "Set when the user edited the proposal before approving."},
					"ai_proposed_content":   {Type: "string", Description: "The full file content originally proposed, when modified_by_user is set."},
				},
				Required: []string{"file_path", "old_string", "new_string"},
			},
			Mutating: true,
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			for _, key := range []string{"old_string", "new_string"} {
				if !shared.HasArg(args, key) {
					return tools.Result{}, fserrors.Invalid("The '%s' parameter is required.", key)
				}
			}
			expected := 0
			if v := shared.IntPtrArg(args, "expected_replacements"); v != nil {
				if *v < 1 {
					return tools.Result{}, fserrors.Invalid("expected_replacements must be at least 1, got %d", *v)
				}
				expected = *v
			}
			outcome, err := e.EditFile(ctx, EditRequest{
				FilePath:             shared.StringArg(args, "file_path"),
				OldString:            shared.StringArg(args, "old_string"),
				NewString:            shared.StringArg(args, "new_string"),
				ExpectedReplacements: expected,
				ModifiedByUser:       shared.BoolValue(shared.BoolPtrArg(args, "modified_by_user"), false),
				AIProposedContent:    shared.StringArg(args, "ai_proposed_content"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			return outcomeResult(outcome), nil
		},
	}
}

func (e *Engine) readManyFilesTool() tools.Executor {
	stringList := &tools.Property{Type: "string"}
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameReadManyFiles,
			Description: "Reads content from multiple files specified by absolute paths or glob patterns and concatenates text files with '--- {filePath} ---' separators. Images and PDFs are returned only when requested by name or extension.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"paths":                {Type: "array", Description: "Absolute file paths, directories or glob patterns.", Items: stringList},
					"include":              {Type: "array", Description: "Additional glob patterns; relative patterns are evaluated in every workspace directory.", Items: stringList},
					"exclude":              {Type: "array", Description: "Glob patterns for files to exclude.", Items: stringList},
					"useDefaultExcludes":   {Type: "boolean", Description: "Whether to apply the default exclusion patterns. Defaults to true."},
					"use_default_excludes": {Type: "boolean", Description: "Alias of useDefaultExcludes."},
				},
				Required: []string{"paths"},
			},
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			useDefaults := shared.BoolPtrArg(args, "useDefaultExcludes")
			if useDefaults == nil {
				useDefaults = shared.BoolPtrArg(args, "use_default_excludes")
			}
			res, err := e.ReadManyFiles(ctx, ReadManyRequest{
				Paths:              shared.StringSliceArg(args, "paths"),
				Include:            shared.StringSliceArg(args, "include"),
				Exclude:            shared.StringSliceArg(args, "exclude"),
				UseDefaultExcludes: useDefaults,
			})
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{
				LLMContent:    res.Content,
				ReturnDisplay: res.Summary(),
				Metadata: map[string]any{
					"processed":   res.Processed,
					"skipped":     res.Skipped,
					"attachments": res.Attachments,
				},
			}, nil
		},
	}
}

func (e *Engine) listDirectoryTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameListDirectory,
			Description: "Lists the names of files and subdirectories directly within a specified directory path. Can optionally ignore entries matching provided glob patterns.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"path":               {Type: "string", Description: "The absolute path to the directory to list."},
					"ignore":             {Type: "array", Description: "List of glob patterns to ignore.", Items: &tools.Property{Type: "string"}},
					"respect_git_ignore": {Type: "boolean", Description: "Whether to respect .gitignore patterns. Defaults to true."},
				},
				Required: []string{"path"},
			},
			Mutating: true,
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			res, err := e.ListDirectory(ctx, ListRequest{
				Path:             shared.StringArg(args, "path"),
				Ignore:           shared.StringSliceArg(args, "ignore"),
				RespectGitIgnore: shared.BoolPtrArg(args, "respect_git_ignore"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			display := fmt.Sprintf("Listed %s.", shared.Plural(len(res.Entries), "item"))
			if res.GitIgnored > 0 {
				display += fmt.Sprintf(" (%d git-ignored)", res.GitIgnored)
			}
			return tools.Result{
				LLMContent:    res.Summary(),
				ReturnDisplay: display,
				Metadata: map[string]any{
					"entries":     res.Entries,
					"git_ignored": res.GitIgnored,
				},
			}, nil
		},
	}
}

func (e *Engine) globTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameGlob,
			Description: "Efficiently finds files matching specific glob patterns (e.g. `src/**/*.ts`, `**/*.md`), returning absolute paths sorted by modification time (newest first).",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"pattern":               {Type: "string", Description: "The glob pattern to match against."},
					"path":                  {Type: "string", Description: "Optional: the absolute path to the directory to search within. Defaults to all workspace directories."},
					"case_sensitive":        {Type: "boolean", Description: "Whether the search should be case-sensitive. Defaults to false."},
					"respect_git_ignore":    {Type: "boolean", Description: "Whether to respect .gitignore patterns. Defaults to true."},
					"respect_gemini_ignore": {Type: "boolean", Description: "Whether to respect .geminiignore patterns. Defaults to true."},
				},
				Required: []string{"pattern"},
			},
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			res, err := e.GlobSearch(ctx, GlobRequest{
				Pattern:             shared.StringArg(args, "pattern"),
				Path:                shared.StringArg(args, "path"),
				CaseSensitive:       shared.BoolValue(shared.BoolPtrArg(args, "case_sensitive"), false),
				RespectGitIgnore:    shared.BoolPtrArg(args, "respect_git_ignore"),
				RespectGeminiIgnore: shared.BoolPtrArg(args, "respect_gemini_ignore"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			display := "No files found"
			if len(res.Files) > 0 {
				display = fmt.Sprintf("Found %s", shared.Plural(len(res.Files), "matching file"))
			}
			return tools.Result{
				LLMContent:    res.Summary(),
				ReturnDisplay: display,
				Metadata: map[string]any{
					"files":          res.Files,
					"git_ignored":    res.GitIgnored,
					"gemini_ignored": res.GeminiIgnored,
				},
			}, nil
		},
	}
}

func (e *Engine) searchContentTool() tools.Executor {
	return &fileTool{
		def: tools.Definition{
			Name:        tools.NameSearchContent,
			Description: "Searches for a regular expression pattern within the content of files in a specified directory (or all workspace directories). Can filter files by a glob pattern. Returns the lines containing matches, along with their file paths and line numbers.",
			Parameters: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"pattern": {Type: "string", Description: "The regular expression pattern to search for within file contents."},
					"path":    {Type: "string", Description: "Optional: the absolute path to the directory to search within."},
					"include": {Type: "string", Description: "Optional: a glob pattern to filter which files are searched (e.g. '*.js', 'src/**/*.{ts,tsx}')."},
				},
				Required: []string{"pattern"},
			},
		},
		run: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			res, err := e.SearchFileContent(ctx, GrepRequest{
				Pattern: shared.StringArg(args, "pattern"),
				Path:    shared.StringArg(args, "path"),
				Include: shared.StringArg(args, "include"),
			})
			if err != nil {
				return tools.Result{}, err
			}
			total := res.Total()
			display := "No matches found"
			switch {
			case total == 1:
				display = "Found 1 match"
			case total > 1:
				display = fmt.Sprintf("Found %d matches", total)
			}
			strategies := make([]string, 0, len(res.Dirs))
			for _, d := range res.Dirs {
				strategies = append(strategies, d.Strategy)
			}
			return tools.Result{
				LLMContent:    res.Summary(),
				ReturnDisplay: display,
				Metadata: map[string]any{
					"total_matches": total,
					"strategies":    strategies,
				},
			}, nil
		},
	}
}

// outcomeResult renders a write or edit outcome with its structured diff.
func outcomeResult(outcome EditOutcome) tools.Result {
	return tools.Result{
		LLMContent:    outcome.Message,
		ReturnDisplay: outcome.DiffStat.Summary(),
		FileDiff: &tools.FileDiff{
			FileName:        filepath.Base(outcome.FilePath),
			Diff:            outcome.Diff,
			OriginalContent: outcome.OriginalContent,
			NewContent:      outcome.NewContent,
			DiffStat:        outcome.DiffStat,
		},
		Metadata: map[string]any{
			"path":         outcome.FilePath,
			"replacements": outcome.Replacements,
			"is_new_file":  outcome.IsNewFile,
			"user_edited":  outcome.DiffStat.HasUserEdits(),
		},
	}
}
