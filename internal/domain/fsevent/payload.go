package fsevent

// String returns a pointer to s for building payloads.
func String(s string) *string { return &s }

// StringValue dereferences s, treating nil as empty.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToolArgs converts the payload into write_file arguments. A missing
// content field stays missing.
func (p WritePayload) ToolArgs() map[string]any {
	args := map[string]any{"file_path": p.FilePath}
	if p.Content != nil {
		args["content"] = *p.Content
	}
	if p.ModifiedByUser {
		args["modified_by_user"] = true
		args["ai_proposed_content"] = p.AIProposedContent
	}
	return args
}

// ToolArgs converts the payload into replace arguments. A zero expected
// count is left out so the tool default of one applies.
func (p EditPayload) ToolArgs() map[string]any {
	args := map[string]any{"file_path": p.FilePath}
	if p.OldString != nil {
		args["old_string"] = *p.OldString
	}
	if p.NewString != nil {
		args["new_string"] = *p.NewString
	}
	if p.ExpectedReplacements != 0 {
		args["expected_replacements"] = p.ExpectedReplacements
	}
	if p.ModifiedByUser {
		args["modified_by_user"] = true
		args["ai_proposed_content"] = p.AIProposedContent
	}
	return args
}

// ToolArgs converts the payload into list_directory arguments.
func (p ListDirectoryPayload) ToolArgs() map[string]any {
	args := map[string]any{"path": p.Path}
	if len(p.Ignore) > 0 {
		args["ignore"] = append([]string(nil), p.Ignore...)
	}
	if p.RespectGitIgnore != nil {
		args["respect_git_ignore"] = *p.RespectGitIgnore
	}
	return args
}
