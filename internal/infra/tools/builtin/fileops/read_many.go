package fileops

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	fserrors "fsgate/internal/shared/errors"
)

const (
	separatorFormat  = "--- %s ---"
	endOfContent     = "--- End of content ---"
	noFilesFound     = "No files matching the criteria were found or all were skipped."
	binarySniffBytes = 4096
)

// DefaultReadManyExcludes are applied to every batch read unless disabled.
// Patterns are matched against paths relative to the file's workspace root.
var DefaultReadManyExcludes = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/.vscode/**",
	"**/.idea/**",
	"**/dist/**",
	"**/build/**",
	"**/coverage/**",
	"**/__pycache__/**",
	"**/*.pyc",
	"**/*.pyo",
	"**/*.bin",
	"**/*.exe",
	"**/*.dll",
	"**/*.so",
	"**/*.dylib",
	"**/*.class",
	"**/*.jar",
	"**/*.war",
	"**/*.zip",
	"**/*.tar",
	"**/*.gz",
	"**/*.bz2",
	"**/*.rar",
	"**/*.7z",
	"**/*.doc",
	"**/*.docx",
	"**/*.xls",
	"**/*.xlsx",
	"**/*.ppt",
	"**/*.pptx",
	"**/*.odt",
	"**/*.ods",
	"**/*.odp",
	"**/.DS_Store",
	"**/.env",
}

// FileType is the coarse classification used to decide whether a file can be
// inlined as text.
type FileType string

const (
	FileTypeText   FileType = "text"
	FileTypeImage  FileType = "image"
	FileTypePDF    FileType = "pdf"
	FileTypeBinary FileType = "binary"
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".ico": {}, ".tiff": {},
}

var binaryExtensions = map[string]struct{}{
	".zip": {}, ".tar": {}, ".gz": {}, ".exe": {}, ".dll": {}, ".so": {}, ".class": {}, ".jar": {},
	".war": {}, ".7z": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".odt": {}, ".ods": {}, ".odp": {}, ".bin": {}, ".dat": {}, ".obj": {}, ".o": {}, ".a": {},
	".lib": {}, ".wasm": {}, ".pyc": {}, ".pyo": {},
}

// ReadManyRequest reads a batch of files. Paths are absolute files,
// directories or glob patterns; Include entries may also be relative globs,
// evaluated under every workspace root.
type ReadManyRequest struct {
	Paths              []string
	Include            []string
	Exclude            []string
	UseDefaultExcludes *bool
}

// SkippedFile records why a candidate was not inlined.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Attachment is an image or PDF returned inline.
type Attachment struct {
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ReadManyResult is the concatenated batch output.
type ReadManyResult struct {
	Content     string        `json:"content"`
	Processed   []string      `json:"processed"`
	Skipped     []SkippedFile `json:"skipped"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

type readManyItem struct {
	path       string
	text       string
	attachment *Attachment
	skip       string
}

// ReadManyFiles expands the inputs into files and reads each independently.
// Per-file failures are recorded as skips and never abort the batch.
func (e *Engine) ReadManyFiles(ctx context.Context, req ReadManyRequest) (ReadManyResult, error) {
	if len(req.Paths) == 0 && len(req.Include) == 0 {
		return ReadManyResult{}, fserrors.Invalid("The 'paths' parameter must contain at least one path or pattern.")
	}
	for _, p := range req.Paths {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			return ReadManyResult{}, fserrors.Invalid("The 'paths' parameter must not contain empty entries.")
		}
		if !filepath.IsAbs(trimmed) {
			return ReadManyResult{}, fserrors.Invalid("Path must be absolute, but was relative: %s. You must provide an absolute path.", trimmed)
		}
	}

	patterns := make([]string, 0, len(req.Paths)+len(req.Include))
	patterns = append(patterns, req.Paths...)
	for _, inc := range req.Include {
		if inc = strings.TrimSpace(inc); inc != "" {
			patterns = append(patterns, inc)
		}
	}

	excludes := make([]string, 0, len(DefaultReadManyExcludes)+len(req.Exclude))
	if req.UseDefaultExcludes == nil || *req.UseDefaultExcludes {
		excludes = append(excludes, DefaultReadManyExcludes...)
	}
	for _, ex := range req.Exclude {
		if ex = strings.TrimSpace(ex); ex != "" {
			excludes = append(excludes, ex)
		}
	}

	candidates, skipped, err := e.expandReadManyInputs(ctx, patterns)
	if err != nil {
		return ReadManyResult{}, err
	}

	files := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if !e.workspace.IsPathWithinWorkspace(path) {
			skipped = append(skipped, SkippedFile{Path: path, Reason: "path is outside the workspace"})
			continue
		}
		if e.excluded(path, excludes) {
			continue
		}
		files = append(files, path)
	}

	items := make([]readManyItem, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.readConcurrency)
	for i, path := range files {
		group.Go(func() error {
			items[i] = e.readManyOne(groupCtx, path, patterns)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ReadManyResult{}, fserrors.Wrap(fserrors.KindReadManyFailure, err, "Error during read many files operation")
	}
	if err := ctx.Err(); err != nil {
		return ReadManyResult{}, err
	}

	result := ReadManyResult{}
	var b strings.Builder
	for _, item := range items {
		switch {
		case item.skip != "":
			skipped = append(skipped, SkippedFile{Path: item.path, Reason: item.skip})
		case item.attachment != nil:
			result.Attachments = append(result.Attachments, *item.attachment)
			result.Processed = append(result.Processed, item.path)
		default:
			fmt.Fprintf(&b, separatorFormat+"\n\n%s\n\n", item.path, item.text)
			result.Processed = append(result.Processed, item.path)
		}
	}
	result.Skipped = skipped

	switch {
	case len(result.Processed) == 0:
		result.Content = noFilesFound
	case b.Len() > 0:
		b.WriteString(endOfContent)
		result.Content = b.String()
	default:
		result.Content = endOfContent
	}
	return result, nil
}

// expandReadManyInputs turns paths and patterns into a sorted, de-duplicated
// list of absolute file paths. An absolute input whose literal prefix lies
// outside the workspace is skipped once, without touching the file system.
func (e *Engine) expandReadManyInputs(ctx context.Context, patterns []string) ([]string, []SkippedFile, error) {
	seen := make(map[string]struct{})
	var out []string
	var skipped []SkippedFile
	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for _, raw := range patterns {
		var absPatterns []string
		if filepath.IsAbs(raw) {
			pattern := filepath.Clean(raw)
			if !e.workspace.IsPathWithinWorkspace(literalBase(pattern)) {
				skipped = append(skipped, SkippedFile{Path: raw, Reason: "path is outside the workspace"})
				continue
			}
			absPatterns = []string{pattern}
		} else {
			for _, root := range e.workspace.Directories() {
				absPatterns = append(absPatterns, filepath.Join(root, filepath.FromSlash(anyDepth(raw))))
			}
		}

		for _, pattern := range absPatterns {
			if info, err := os.Stat(pattern); err == nil {
				if !info.IsDir() {
					add(pattern)
					continue
				}
				if err := walkGlob(ctx, pattern, "**", true, func(f walkedFile) { add(f.Abs) }); err != nil {
					return nil, nil, e.expandError(ctx, err)
				}
				continue
			}
			if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
				return nil, nil, fserrors.Invalid("Invalid glob pattern: %s", raw)
			}
			base, rel := splitGlob(pattern)
			if _, err := os.Stat(base); err != nil {
				continue
			}
			if err := walkGlob(ctx, base, rel, true, func(f walkedFile) { add(f.Abs) }); err != nil {
				return nil, nil, e.expandError(ctx, err)
			}
		}
	}
	sort.Strings(out)
	return out, skipped, nil
}

func (e *Engine) expandError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fserrors.Wrap(fserrors.KindReadManyFailure, err, "Error during read many files operation")
}

// excluded matches path against the exclude globs, relative to its workspace
// root. Absolute excludes are matched against the absolute path.
func (e *Engine) excluded(path string, excludes []string) bool {
	root := e.rootFor(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	abs := filepath.ToSlash(path)
	for _, pattern := range excludes {
		candidate := rel
		if filepath.IsAbs(pattern) {
			candidate = abs
		} else {
			pattern = anyDepth(pattern)
		}
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), candidate); ok {
			return true
		}
	}
	return false
}

func (e *Engine) readManyOne(ctx context.Context, path string, patterns []string) readManyItem {
	item := readManyItem{path: path}
	fileType := detectFileType(path)
	if fileType != FileTypeText && !explicitlyRequested(path, patterns) {
		item.skip = fmt.Sprintf("asset file (%s) was not explicitly requested by name or extension", fileType)
		return item
	}

	switch fileType {
	case FileTypeImage, FileTypePDF:
		if err := ctx.Err(); err != nil {
			item.skip = err.Error()
			return item
		}
		data, err := e.fs.ReadFile(ctx, path)
		if err != nil {
			item.skip = "Read error: " + err.Error()
			return item
		}
		item.attachment = &Attachment{Path: path, MimeType: mimeTypeFor(path, fileType), Data: base64.StdEncoding.EncodeToString(data)}
		return item
	case FileTypeBinary:
		item.text = "Cannot display content of binary file: " + e.displayPath(path)
		return item
	}

	content, err := e.fs.ReadTextFile(ctx, path)
	if err != nil {
		if !fserrors.Is(err, fserrors.KindFileNotFound) {
			e.logger.Warn("read_many_files: %s: %v", path, err)
		}
		item.skip = "Read error: " + err.Error()
		return item
	}
	if looksBinary([]byte(content)) {
		if !explicitlyRequested(path, patterns) {
			item.skip = "binary content was not explicitly requested"
			return item
		}
		item.text = "Cannot display content of binary file: " + e.displayPath(path)
		return item
	}
	item.text = content
	return item
}

// detectFileType classifies by extension.
func detectFileType(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return FileTypeImage
	}
	if ext == ".pdf" {
		return FileTypePDF
	}
	if _, ok := binaryExtensions[ext]; ok {
		return FileTypeBinary
	}
	return FileTypeText
}

// explicitlyRequested reports whether an input pattern names the file or its
// extension.
func explicitlyRequested(path string, patterns []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	slashed := filepath.ToSlash(path)
	for _, pattern := range patterns {
		if ext != "" && strings.Contains(strings.ToLower(pattern), ext) {
			return true
		}
		named := strings.TrimPrefix(filepath.ToSlash(pattern), "./")
		if named == slashed || strings.HasSuffix(slashed, "/"+named) {
			return true
		}
	}
	return false
}

func looksBinary(data []byte) bool {
	if len(data) > binarySniffBytes {
		data = data[:binarySniffBytes]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func mimeTypeFor(path string, fileType FileType) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	if fileType == FileTypePDF {
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Summary renders the human-facing result.
func (r ReadManyResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### ReadManyFiles Result\n\nSuccessfully read and concatenated content from **%d file(s)**.", len(r.Processed))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "\n\n**Skipped %d item(s):**", len(r.Skipped))
		for i, s := range r.Skipped {
			if i == 5 {
				fmt.Fprintf(&b, "\n- ...and %d more", len(r.Skipped)-5)
				break
			}
			fmt.Fprintf(&b, "\n- `%s` (Reason: %s)", s.Path, s.Reason)
		}
	}
	return b.String()
}
