package approval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	toolspolicy "fsgate/internal/infra/tools"
	"fsgate/internal/infra/tools/builtin/fileops"
	"fsgate/internal/infra/tools/builtin/search"
	"fsgate/internal/infra/workspace"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
)

type sent struct {
	to  string
	msg any
}

type fakeTransport struct {
	mu      sync.Mutex
	parents map[string]*fsevent.TargetClient
	agent   []sent
	conn    []sent
	connErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{parents: map[string]*fsevent.TargetClient{}}
}

func (f *fakeTransport) ResolveParent(agentID string) (*fsevent.TargetClient, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parents[agentID]
	return p, ok
}

func (f *fakeTransport) SendToAgent(agentID string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agent = append(f.agent, sent{to: agentID, msg: msg})
	return nil
}

func (f *fakeTransport) SendToConnection(connID string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = append(f.conn, sent{to: connID, msg: msg})
	return f.connErr
}

func (f *fakeTransport) agentResponses() []fsevent.AgentResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fsevent.AgentResponse
	for _, s := range f.agent {
		out = append(out, s.msg.(fsevent.AgentResponse))
	}
	return out
}

func (f *fakeTransport) connMessages() []fsevent.ApprovalMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fsevent.ApprovalMessage
	for _, s := range f.conn {
		out = append(out, s.msg.(fsevent.ApprovalMessage))
	}
	return out
}

type fakeRemote struct {
	mu       sync.Mutex
	messages []fsevent.ApprovalMessage
}

func (f *fakeRemote) Publish(_ context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg.(fsevent.ApprovalMessage))
	return nil
}

func (f *fakeRemote) states() []fsevent.StateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fsevent.StateEvent
	for _, m := range f.messages {
		out = append(out, m.StateEvent)
	}
	return out
}

type harness struct {
	coord     *Coordinator
	transport *fakeTransport
	remote    *fakeRemote
	root      string
	now       time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	engine, err := fileops.NewEngine(fileops.Options{
		Workspace: ws,
		Searcher:  search.NewCascade(nil, search.NewScan(nil)),
	})
	require.NoError(t, err)
	registry := toolspolicy.NewRegistry(toolspolicy.RegistryOptions{
		Collector: toolspolicy.NewSLACollector(prometheus.NewRegistry()),
	})
	require.NoError(t, registry.Register(fileops.NewTools(engine)...))

	h := &harness{
		transport: newFakeTransport(),
		remote:    &fakeRemote{},
		root:      ws.Directories()[0],
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []Option{
		WithLogger(logging.Nop()),
		WithPreviewer(engine),
		WithRemote(h.remote),
		WithWorkspace(ws),
		WithClock(func() time.Time { return h.now }),
	}
	h.coord = NewCoordinator(registry, h.transport, append(base, opts...)...)
	return h
}

func (h *harness) withParent(agentID string) {
	h.transport.parents[agentID] = &fsevent.TargetClient{ID: "app-1", Type: fsevent.RoleApp}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func writeRequest(t *testing.T, requestID, path, content string) fsevent.MutationRequest {
	return fsevent.MutationRequest{
		RequestID: requestID,
		AgentID:   "agent-1",
		Action:    fsevent.ActionWrite,
		FilePath:  path,
		Payload:   mustJSON(t, fsevent.WritePayload{FilePath: path, Content: fsevent.String(content)}),
	}
}

func editRequest(t *testing.T, requestID, path, oldString, newString string) fsevent.MutationRequest {
	return fsevent.MutationRequest{
		RequestID: requestID,
		AgentID:   "agent-1",
		Action:    fsevent.ActionEdit,
		FilePath:  path,
		Payload:   mustJSON(t, fsevent.EditPayload{FilePath: path, OldString: fsevent.String(oldString), NewString: fsevent.String(newString)}),
	}
}

func TestApprovalGateHoldsWriteUntilApproved(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "notes.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "hello\n"))

	_, err := os.Stat(target)
	require.True(t, os.IsNotExist(err), "file must not exist before approval")
	assert.Empty(t, h.transport.agentResponses())

	pending := h.coord.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, target, pending[0].FilePath)
	assert.Equal(t, "app-1", pending[0].Target.ID)

	asks := h.transport.connMessages()
	require.Len(t, asks, 1)
	ask := asks[0]
	assert.Equal(t, fsevent.StateAskForConfirmation, ask.StateEvent)
	assert.Equal(t, "req-1", ask.ThreadID)
	assert.Equal(t, pending[0].MessageID, ask.MessageID)
	assert.Contains(t, ask.Diff, "+hello")
	assert.Equal(t, "hello\n", ask.Content)

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "APPROVE"})

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Empty(t, h.coord.Pending())
	assert.True(t, h.coord.HasGrant("agent-1", target))

	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Success)
	assert.Equal(t, fsevent.StateFileWrite, responses[0].StateEvent)
	assert.Equal(t, ask.MessageID, responses[0].MessageID)

	conn := h.transport.connMessages()
	require.Len(t, conn, 2)
	assert.Equal(t, fsevent.StateFileWrite, conn[1].StateEvent)
	assert.Contains(t, conn[1].Diff, "+hello")

	assert.Equal(t, []fsevent.StateEvent{fsevent.StateAskForConfirmation, fsevent.StateFileWrite}, h.remote.states())
}

func TestRejectionLeavesFileUntouchedAndRespondsOnce(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "keep.txt")
	require.NoError(t, os.WriteFile(target, []byte("original\n"), 0o644))

	h.coord.HandleRequest(ctx, editRequest(t, "req-1", target, "original", "changed"))
	ask := h.transport.connMessages()[0]

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "no thanks"})
	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve"})
	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: ask.MessageID, State: "approved"})

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))
	assert.False(t, h.coord.HasGrant("agent-1", target))

	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Success)
	assert.Equal(t, fsevent.StateRejected, responses[0].StateEvent)
	assert.Equal(t, DefaultRejectionReason, responses[0].Error)
	assert.Equal(t, string(fserrors.KindApprovalRejected), responses[0].ErrorType)
	assert.Equal(t, []fsevent.StateEvent{fsevent.StateAskForConfirmation, fsevent.StateRejected}, h.remote.states())
}

func TestGrantPersistsForSamePath(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "x.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "a\nb\n"))
	ask := h.transport.connMessages()[0]
	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: ask.MessageID, State: "approved"})

	h.coord.HandleRequest(ctx, editRequest(t, "req-2", target, "b", "B"))

	assert.Empty(t, h.coord.Pending())
	for _, msg := range h.transport.connMessages()[1:] {
		assert.NotEqual(t, fsevent.StateAskForConfirmation, msg.StateEvent)
	}
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a\nB\n", string(data))

	responses := h.transport.agentResponses()
	require.Len(t, responses, 2)
	assert.True(t, responses[1].Success)
	result := responses[1].Result.(tools.Result)
	require.NotNil(t, result.FileDiff)
	assert.Equal(t, "a\nB\n", result.FileDiff.NewContent)
	assert.Equal(t, 1, result.Metadata["replacements"])

	// A different path still asks.
	h.coord.HandleRequest(ctx, writeRequest(t, "req-3", filepath.Join(h.root, "y.txt"), "y"))
	assert.Len(t, h.coord.Pending(), 1)
}

func TestNoParentExecutesDirectly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	target := filepath.Join(h.root, "sub", "direct.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "direct"))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(data))
	assert.Empty(t, h.coord.Pending())
	assert.Empty(t, h.transport.connMessages())

	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Success)
	assert.NotEmpty(t, responses[0].MessageID)
	assert.Equal(t, []fsevent.StateEvent{fsevent.StateFileWrite}, h.remote.states())
}

func TestConfirmationOnlyFromTargetClient(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "owned.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "x"))
	ask := h.transport.connMessages()[0]

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve", From: "tui-9"})
	assert.Len(t, h.coord.Pending(), 1)
	assert.Empty(t, h.transport.agentResponses())
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve", From: "app-1"})
	assert.Empty(t, h.coord.Pending())
	assert.Equal(t, "x", string(must(os.ReadFile(target))))
}

func TestRemoteRejectionCarriesReason(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "r.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "x"))
	h.coord.HandleRequest(ctx, writeRequest(t, "req-2", filepath.Join(h.root, "s.txt"), "x"))
	asks := h.transport.connMessages()
	require.Len(t, asks, 2)

	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: asks[0].MessageID, State: "rejected", Reason: "not today"})
	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: asks[1].MessageID, State: "denied"})

	responses := h.transport.agentResponses()
	require.Len(t, responses, 2)
	assert.Equal(t, "not today", responses[0].Error)
	assert.Equal(t, DefaultRejectionReason, responses[1].Error)
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestUnknownAndMalformedDecisionsAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", filepath.Join(h.root, "a.txt"), "x"))

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: "nope", UserMessage: "approve"})
	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: "", State: "approved"})
	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: "nope", State: "approved"})

	assert.Len(t, h.coord.Pending(), 1)
	assert.Empty(t, h.transport.agentResponses())
}

func TestSameKeyRequestsAreNotCoalesced(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "dup.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "first"))
	h.coord.HandleRequest(ctx, writeRequest(t, "req-2", target, "second"))

	pending := h.coord.Pending()
	require.Len(t, pending, 2)
	assert.NotEqual(t, pending[0].MessageID, pending[1].MessageID)

	asks := h.transport.connMessages()
	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: asks[0].MessageID, UserMessage: "approve"})
	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: asks[1].MessageID, UserMessage: "approve"})

	responses := h.transport.agentResponses()
	require.Len(t, responses, 2)
	assert.True(t, responses[0].Success)
	assert.True(t, responses[1].Success)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestListDirectoryUsesDirectoryStates(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(h.root, "dir"), 0o755))

	h.coord.HandleRequest(ctx, fsevent.MutationRequest{
		RequestID: "req-ls",
		AgentID:   "agent-1",
		Action:    fsevent.ActionListDirectory,
		FilePath:  h.root,
		Payload:   mustJSON(t, fsevent.ListDirectoryPayload{Path: h.root}),
	})
	asks := h.transport.connMessages()
	require.Len(t, asks, 1)
	assert.Equal(t, fsevent.StateAskForConfirmationDir, asks[0].StateEvent)
	assert.Empty(t, asks[0].Diff)

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: asks[0].MessageID, UserMessage: "approve"})

	conn := h.transport.connMessages()
	require.Len(t, conn, 2)
	assert.Equal(t, fsevent.StateDirectoryListedSuccess, conn[1].StateEvent)
	entries, ok := conn[1].Entries.([]fileops.DirEntry)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "dir", entries[0].Name)
	assert.Equal(t, "a.txt", entries[1].Name)

	missing := filepath.Join(h.root, "missing")
	h.coord.HandleRequest(ctx, fsevent.MutationRequest{
		RequestID: "req-ls-2",
		AgentID:   "agent-1",
		Action:    fsevent.ActionListDirectory,
		FilePath:  missing,
		Payload:   mustJSON(t, fsevent.ListDirectoryPayload{Path: missing}),
	})
	ask := h.transport.connMessages()[2]
	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve"})

	conn = h.transport.connMessages()
	last := conn[len(conn)-1]
	assert.Equal(t, fsevent.StateDirectoryListError, last.StateEvent)
	assert.Equal(t, string(fserrors.KindFileNotFound), last.ErrorType)
}

func TestFailedEditAfterApprovalReportsError(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "e.txt")
	require.NoError(t, os.WriteFile(target, []byte("alpha\n"), 0o644))

	h.coord.HandleRequest(ctx, editRequest(t, "req-1", target, "omega", "beta"))
	ask := h.transport.connMessages()[0]
	assert.Empty(t, ask.Diff, "preview of an impossible edit has no diff")

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve"})

	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Success)
	assert.Equal(t, fsevent.StateFileWriteError, responses[0].StateEvent)
	assert.Equal(t, string(fserrors.KindEditNoOccurrenceFound), responses[0].ErrorType)

	conn := h.transport.connMessages()
	assert.Equal(t, fsevent.StateFileWriteError, conn[len(conn)-1].StateEvent)
	assert.Equal(t, "alpha\n", string(must(os.ReadFile(target))))
}

func must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return data
}

func TestValidationHappensBeforeAnyIO(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", "relative.txt", "x"))
	h.coord.HandleRequest(ctx, writeRequest(t, "req-2", filepath.Join(os.TempDir(), "outside-fsgate.txt"), "x"))
	h.coord.HandleRequest(ctx, writeRequest(t, "", filepath.Join(h.root, "a.txt"), "x"))

	assert.Empty(t, h.coord.Pending())
	assert.Empty(t, h.transport.connMessages())

	responses := h.transport.agentResponses()
	require.Len(t, responses, 3)
	assert.Equal(t, string(fserrors.KindInvalidParams), responses[0].ErrorType)
	assert.Equal(t, string(fserrors.KindPathNotInWorkspace), responses[1].ErrorType)
	assert.Equal(t, string(fserrors.KindInvalidParams), responses[2].ErrorType)
}

func TestMissingPayloadFieldsAreRejectedBeforeIO(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	precious := filepath.Join(h.root, "important.txt")
	require.NoError(t, os.WriteFile(precious, []byte("precious data\n"), 0o644))
	created := filepath.Join(h.root, "created.txt")

	frames := []struct {
		action  fsevent.Action
		message string
	}{
		{fsevent.ActionWrite, `{"filePath":"` + precious + `"}`},
		{fsevent.ActionWrite, `{"filePath":"` + precious + `","content":null}`},
		{fsevent.ActionEdit, `{"filePath":"` + created + `","newString":"x"}`},
		{fsevent.ActionEdit, `{"filePath":"` + precious + `","oldString":"precious"}`},
	}
	for i, frame := range frames {
		h.coord.HandleAgentMessage(ctx, "agent-1", fsevent.Envelope{
			Type:      fsevent.TypeFSEvent,
			Action:    frame.action,
			RequestID: "req-" + strconv.Itoa(i),
			Message:   json.RawMessage(frame.message),
		})
	}

	assert.Equal(t, "precious data\n", string(must(os.ReadFile(precious))))
	_, err := os.Stat(created)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, h.remote.states())

	responses := h.transport.agentResponses()
	require.Len(t, responses, len(frames))
	for _, resp := range responses {
		assert.False(t, resp.Success)
		assert.Equal(t, string(fserrors.KindInvalidParams), resp.ErrorType)
	}
	assert.Contains(t, responses[0].Error, "content")
	assert.Contains(t, responses[2].Error, "oldString")
	assert.Contains(t, responses[3].Error, "newString")
}

func TestMissingPayloadFieldsNeverReachTheParent(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "gated.txt")

	h.coord.HandleRequest(ctx, fsevent.MutationRequest{
		RequestID: "req-1",
		AgentID:   "agent-1",
		Action:    fsevent.ActionWrite,
		FilePath:  target,
		Payload:   json.RawMessage(`{"filePath":"` + target + `"}`),
	})

	assert.Empty(t, h.coord.Pending())
	assert.Empty(t, h.transport.connMessages())
	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, string(fserrors.KindInvalidParams), responses[0].ErrorType)
}

func TestEmptyContentAndOldStringAreStillAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	empty := filepath.Join(h.root, "empty.txt")
	fresh := filepath.Join(h.root, "fresh.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", empty, ""))
	h.coord.HandleRequest(ctx, editRequest(t, "req-2", fresh, "", "new file\n"))

	responses := h.transport.agentResponses()
	require.Len(t, responses, 2)
	assert.True(t, responses[0].Success)
	assert.True(t, responses[1].Success)
	assert.Equal(t, "", string(must(os.ReadFile(empty))))
	assert.Equal(t, "new file\n", string(must(os.ReadFile(fresh))))
}

func TestGrantIsKeyedByCleanedPath(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "x.txt")
	dotted := h.root + "/a/../x.txt"

	h.coord.HandleAgentMessage(ctx, "agent-1", fsevent.Envelope{
		Type:      fsevent.TypeFSEvent,
		Action:    fsevent.ActionWrite,
		RequestID: "req-1",
		Message:   mustJSON(t, fsevent.WritePayload{FilePath: dotted, Content: fsevent.String("one\n")}),
	})
	pending := h.coord.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, target, pending[0].FilePath)

	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: pending[0].MessageID, UserMessage: "approve"})
	assert.True(t, h.coord.HasGrant("agent-1", target))
	assert.True(t, h.coord.HasGrant("agent-1", dotted))

	h.coord.HandleRequest(ctx, writeRequest(t, "req-2", target, "two\n"))
	assert.Empty(t, h.coord.Pending())
	assert.Equal(t, "two\n", string(must(os.ReadFile(target))))
}

func TestReadOnlyActionsSkipApproval(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "read.txt")
	require.NoError(t, os.WriteFile(target, []byte("one\ntwo\n"), 0o644))

	h.coord.HandleAgentMessage(ctx, "agent-1", fsevent.Envelope{
		Type:      fsevent.TypeFSEvent,
		Action:    fsevent.ActionRead,
		RequestID: "req-read",
		Message:   mustJSON(t, map[string]any{"absolute_path": target}),
	})

	assert.Empty(t, h.coord.Pending())
	assert.Empty(t, h.transport.connMessages())
	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Success)
	assert.Equal(t, "one\ntwo\n", responses[0].Result.(tools.Result).LLMContent)
}

func TestHandleAgentMessageParsesEnvelope(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "env.txt")

	h.coord.HandleAgentMessage(ctx, "agent-1", fsevent.Envelope{
		Type:      fsevent.TypeFSEvent,
		Action:    fsevent.ActionWrite,
		RequestID: "req-env",
		Message:   mustJSON(t, fsevent.WritePayload{FilePath: target, Content: fsevent.String("via envelope")}),
	})
	pending := h.coord.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, target, pending[0].FilePath)
	assert.Equal(t, "agent-1", pending[0].AgentID)

	h.coord.HandleAgentMessage(ctx, "agent-1", fsevent.Envelope{
		Type:      fsevent.TypeFSEvent,
		Action:    "delete",
		RequestID: "req-bad",
	})
	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "req-bad", responses[0].RequestID)
	assert.Equal(t, string(fserrors.KindInvalidParams), responses[0].ErrorType)
}

func TestExpiredApprovalsAreRejected(t *testing.T) {
	h := newHarness(t, WithPendingTTL(time.Minute, time.Second))
	h.withParent("agent-1")
	ctx := context.Background()
	target := filepath.Join(h.root, "late.txt")

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", target, "x"))
	require.Len(t, h.coord.Pending(), 1)

	h.now = h.now.Add(30 * time.Second)
	assert.Zero(t, h.coord.sweepExpired(ctx))

	h.now = h.now.Add(31 * time.Second)
	assert.Equal(t, 1, h.coord.sweepExpired(ctx))
	assert.Empty(t, h.coord.Pending())

	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, fsevent.StateRejected, responses[0].StateEvent)
	assert.Equal(t, ExpiredReason, responses[0].Error)
	assert.Equal(t, string(fserrors.KindApprovalExpired), responses[0].ErrorType)

	ask := h.transport.connMessages()[0]
	h.coord.HandleConfirmation(ctx, fsevent.ConfirmationResponse{MessageID: ask.MessageID, UserMessage: "approve"})
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestRunWithoutTTLReturnsImmediately(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.Run(context.Background()))

	h = newHarness(t, WithPendingTTL(time.Minute, 10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.coord.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type panicRunner struct{}

func (panicRunner) Execute(context.Context, string, map[string]any) tools.Result {
	panic("disk on fire")
}

func TestPanicsAreContained(t *testing.T) {
	transport := newFakeTransport()
	coord := NewCoordinator(panicRunner{}, transport, WithLogger(logging.Nop()))

	assert.NotPanics(t, func() {
		coord.HandleRequest(context.Background(), writeRequest(t, "req-1", "/tmp/fsgate-panic.txt", "x"))
	})
}

func TestDeliveryFailureKeepsApprovalPending(t *testing.T) {
	h := newHarness(t)
	h.withParent("agent-1")
	h.transport.connErr = errors.New("connection closed")
	ctx := context.Background()

	h.coord.HandleRequest(ctx, writeRequest(t, "req-1", filepath.Join(h.root, "p.txt"), "x"))
	pending := h.coord.Pending()
	require.Len(t, pending, 1)

	h.coord.HandleRemoteNotification(ctx, fsevent.RemoteNotification{MessageID: pending[0].MessageID, State: "approved"})
	responses := h.transport.agentResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Success)
}
