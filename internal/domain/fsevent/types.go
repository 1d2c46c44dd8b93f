package fsevent

import (
	"encoding/json"
	"time"
)

// Role identifies which kind of client owns a connection.
type Role string

const (
	RoleAgent Role = "agent"
	RoleApp   Role = "app"
	RoleTUI   Role = "tui"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleApp, RoleTUI:
		return true
	}
	return false
}

// Action names a file operation requested by an agent.
type Action string

const (
	ActionWrite         Action = "write"
	ActionEdit          Action = "edit"
	ActionListDirectory Action = "listDirectory"
	ActionRead          Action = "read"
	ActionReadMany      Action = "readMany"
	ActionGlob          Action = "glob"
	ActionGrep          Action = "grep"
)

// RequiresApproval reports whether the action is gated behind the parent client.
func (a Action) RequiresApproval() bool {
	switch a {
	case ActionWrite, ActionEdit, ActionListDirectory:
		return true
	}
	return false
}

// Known reports whether the action is handled at all.
func (a Action) Known() bool {
	switch a {
	case ActionWrite, ActionEdit, ActionListDirectory, ActionRead, ActionReadMany, ActionGlob, ActionGrep:
		return true
	}
	return false
}

// StateEvent values carried by approval envelopes.
type StateEvent string

const (
	StateAskForConfirmation     StateEvent = "askForConfirmation"
	StateFileWrite              StateEvent = "fileWrite"
	StateFileWriteError         StateEvent = "fileWriteError"
	StateRejected               StateEvent = "rejected"
	StateDirectoryListedSuccess StateEvent = "DIRECTORY_LISTED_SUCCESS"
	StateDirectoryListError     StateEvent = "DIRECTORY_LIST_ERROR"
	StateAskForConfirmationDir  StateEvent = "ASK_FOR_CONFIRMATION"
)

// Envelope message types.
const (
	TypeFSEvent              = "fsEvent"
	TypeFSEventResponse      = "fsEventResponse"
	TypeConfirmationResponse = "confirmationResponse"
	TypeRemoteNotification   = "remoteNotification"
	TypeError                = "error"
)

// Envelope is the outer shape of every websocket frame. Message holds the
// action specific payload and is decoded lazily.
type Envelope struct {
	Type      string          `json:"type"`
	Action    Action          `json:"action,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	AgentID   string          `json:"agentId,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`

	// Confirmation fields, used when Type is confirmationResponse.
	MessageID   string `json:"messageId,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`

	// Remote notification fields.
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MutationRequest is created once per agent file operation and consumed
// exactly once by the approval coordinator.
type MutationRequest struct {
	RequestID string
	AgentID   string
	Action    Action
	FilePath  string
	Payload   json.RawMessage
}

// TargetClient is the parent connection that gates an agent.
type TargetClient struct {
	ID   string `json:"id"`
	Type Role   `json:"type"`
}

// PendingApproval tracks one outstanding confirmation.
type PendingApproval struct {
	MessageID string          `json:"messageId"`
	AgentID   string          `json:"agentId"`
	Request   MutationRequest `json:"-"`
	Target    *TargetClient   `json:"targetClient,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`

	Action   Action `json:"action"`
	FilePath string `json:"filePath"`
}

// ConfirmationResponse is the local approval decision from a parent client.
// From is the id of the deciding connection; empty for trusted local callers.
type ConfirmationResponse struct {
	MessageID   string `json:"messageId"`
	UserMessage string `json:"userMessage"`
	From        string `json:"-"`
}

// RemoteNotification is the cross-process approval decision.
type RemoteNotification struct {
	MessageID string `json:"messageId"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// RemoteStateApproved is the only remote state that approves a request.
const RemoteStateApproved = "approved"

// WritePayload is the message body for write requests. Content is a
// pointer so an absent field is told apart from an empty file.
type WritePayload struct {
	FilePath          string  `json:"filePath"`
	Content           *string `json:"content"`
	ModifiedByUser    bool    `json:"modifiedByUser,omitempty"`
	AIProposedContent string  `json:"aiProposedContent,omitempty"`
}

// EditPayload is the message body for edit requests. An empty OldString
// creates a file; a missing one is malformed.
type EditPayload struct {
	FilePath             string  `json:"filePath"`
	OldString            *string `json:"oldString"`
	NewString            *string `json:"newString"`
	ExpectedReplacements int     `json:"expectedReplacements,omitempty"`
	ModifiedByUser       bool    `json:"modifiedByUser,omitempty"`
	AIProposedContent    string  `json:"aiProposedContent,omitempty"`
}

// ListDirectoryPayload is the message body for directory listing requests.
type ListDirectoryPayload struct {
	Path             string   `json:"path"`
	Ignore           []string `json:"ignore,omitempty"`
	RespectGitIgnore *bool    `json:"respectGitIgnore,omitempty"`
}

// ApprovalMessage is sent to parent clients and mirrored to the remote
// transport. ThreadID always equals the originating request id.
type ApprovalMessage struct {
	Type       string     `json:"type"`
	MessageID  string     `json:"messageId"`
	ThreadID   string     `json:"threadId"`
	AgentID    string     `json:"agentId"`
	StateEvent StateEvent `json:"stateEvent"`
	Action     Action     `json:"action"`
	FilePath   string     `json:"filePath,omitempty"`
	Content    string     `json:"content,omitempty"`
	Diff       string     `json:"diff,omitempty"`
	DiffStat   any        `json:"diffStat,omitempty"`
	Entries    any        `json:"entries,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorType  string     `json:"errorType,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AgentResponse answers the originating agent's request.
type AgentResponse struct {
	Type       string     `json:"type"`
	RequestID  string     `json:"requestId"`
	Action     Action     `json:"action"`
	Success    bool       `json:"success"`
	StateEvent StateEvent `json:"stateEvent,omitempty"`
	MessageID  string     `json:"messageId,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorType  string     `json:"errorType,omitempty"`
}
