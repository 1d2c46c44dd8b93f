package approval

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	fserrors "fsgate/internal/shared/errors"
)

// toolNames maps every handled action to the tool that implements it.
var toolNames = map[fsevent.Action]string{
	fsevent.ActionWrite:         tools.NameWriteFile,
	fsevent.ActionEdit:          tools.NameReplace,
	fsevent.ActionListDirectory: tools.NameListDirectory,
	fsevent.ActionRead:          tools.NameReadFile,
	fsevent.ActionReadMany:      tools.NameReadManyFiles,
	fsevent.ActionGlob:          tools.NameGlob,
	fsevent.ActionGrep:          tools.NameSearchContent,
}

// ParseRequest builds a MutationRequest from an agent envelope. agentID is
// the id of the sending connection and wins over the envelope field.
func ParseRequest(agentID string, env fsevent.Envelope) (fsevent.MutationRequest, error) {
	if agentID == "" {
		agentID = env.AgentID
	}
	req := fsevent.MutationRequest{
		RequestID: strings.TrimSpace(env.RequestID),
		AgentID:   strings.TrimSpace(agentID),
		Action:    env.Action,
		Payload:   env.Message,
	}
	if err := validateHeader(req); err != nil {
		return req, err
	}
	if req.Action.RequiresApproval() {
		path, err := payloadPath(req.Action, req.Payload)
		if err != nil {
			return req, err
		}
		req.FilePath = path
	}
	req = normalize(req)
	return req, validate(req)
}

func validateHeader(req fsevent.MutationRequest) error {
	if req.RequestID == "" {
		return fserrors.Invalid("The 'requestId' field is required.")
	}
	if req.AgentID == "" {
		return fserrors.Invalid("The agent id is required.")
	}
	if !req.Action.Known() {
		return fserrors.Invalid("Unsupported action: %q", req.Action)
	}
	return nil
}

// validate checks a request before any I/O happens.
func validate(req fsevent.MutationRequest) error {
	if err := validateHeader(req); err != nil {
		return err
	}
	if !req.Action.RequiresApproval() {
		return nil
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return fserrors.Invalid("A file path is required for %s requests.", req.Action)
	}
	if !filepath.IsAbs(req.FilePath) {
		return fserrors.Invalid("File path must be absolute: %s", req.FilePath)
	}
	_, err := payloadPath(req.Action, req.Payload)
	return err
}

// normalize cleans the target path so grants and pending entries are keyed
// by the file that is actually touched.
func normalize(req fsevent.MutationRequest) fsevent.MutationRequest {
	if strings.TrimSpace(req.FilePath) != "" {
		req.FilePath = filepath.Clean(req.FilePath)
	}
	return req
}

// payloadPath extracts the target path of a gated action and rejects
// payloads missing a required field.
func payloadPath(action fsevent.Action, raw json.RawMessage) (string, error) {
	switch action {
	case fsevent.ActionWrite:
		var p fsevent.WritePayload
		if err := decode(raw, &p); err != nil {
			return "", err
		}
		if p.Content == nil {
			return "", fserrors.Invalid("The 'content' field is required for write requests.")
		}
		return p.FilePath, nil
	case fsevent.ActionEdit:
		var p fsevent.EditPayload
		if err := decode(raw, &p); err != nil {
			return "", err
		}
		if p.OldString == nil {
			return "", fserrors.Invalid("The 'oldString' field is required for edit requests. Use an empty string to create a file.")
		}
		if p.NewString == nil {
			return "", fserrors.Invalid("The 'newString' field is required for edit requests.")
		}
		return p.FilePath, nil
	case fsevent.ActionListDirectory:
		var p fsevent.ListDirectoryPayload
		if err := decode(raw, &p); err != nil {
			return "", err
		}
		return p.Path, nil
	}
	return "", nil
}

// toolCall resolves the tool name and arguments for a request. Gated
// payloads are decoded into their typed form. Read-only payloads are handed
// to the tool verbatim.
func toolCall(req fsevent.MutationRequest) (string, map[string]any, error) {
	name, ok := toolNames[req.Action]
	if !ok {
		return "", nil, fserrors.Invalid("Unsupported action: %q", req.Action)
	}
	switch req.Action {
	case fsevent.ActionWrite:
		var p fsevent.WritePayload
		if err := decode(req.Payload, &p); err != nil {
			return "", nil, err
		}
		p.FilePath = req.FilePath
		return name, p.ToolArgs(), nil
	case fsevent.ActionEdit:
		var p fsevent.EditPayload
		if err := decode(req.Payload, &p); err != nil {
			return "", nil, err
		}
		p.FilePath = req.FilePath
		return name, p.ToolArgs(), nil
	case fsevent.ActionListDirectory:
		var p fsevent.ListDirectoryPayload
		if err := decode(req.Payload, &p); err != nil {
			return "", nil, err
		}
		p.Path = req.FilePath
		return name, p.ToolArgs(), nil
	}

	args := map[string]any{}
	if len(req.Payload) > 0 {
		if err := decode(req.Payload, &args); err != nil {
			return "", nil, err
		}
	}
	return name, args, nil
}

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fserrors.Invalid("The 'message' field is required.")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fserrors.Invalid("Malformed message payload: %v", err)
	}
	return nil
}
