package approval

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	"fsgate/internal/infra/tools/builtin/fileops"
	"fsgate/internal/infra/workspace"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
	"fsgate/internal/shared/observability"
	id "fsgate/internal/shared/utils/id"
)

// DefaultRejectionReason is reported when a decision carries no reason.
const DefaultRejectionReason = "Request rejected by user"

// ExpiredReason is reported for approvals removed by the expiry sweep.
const ExpiredReason = "approval request expired"

// ToolRunner executes a named tool.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) tools.Result
}

// Previewer computes the outcome of a write or edit without touching disk.
type Previewer interface {
	PreviewWrite(ctx context.Context, req fileops.WriteRequest) (fileops.EditOutcome, error)
	PreviewEdit(ctx context.Context, req fileops.EditRequest) (fileops.EditOutcome, error)
}

// Transport is the connection registry the coordinator talks through.
type Transport interface {
	ResolveParent(agentID string) (*fsevent.TargetClient, bool)
	SendToAgent(agentID string, msg any) error
	SendToConnection(connID string, msg any) error
}

// RemoteTransport mirrors approval traffic to another process.
type RemoteTransport interface {
	Publish(ctx context.Context, msg any) error
}

type grantKey struct {
	agentID  string
	filePath string
}

// Coordinator gates mutating agent requests behind a parent client. Requests
// move Received -> (Direct-Execute | Awaiting-Approval) -> Executing ->
// Responded; each pending approval is consumed exactly once.
type Coordinator struct {
	runner    ToolRunner
	transport Transport
	previewer Previewer
	remote    RemoteTransport
	workspace workspace.Context
	logger    logging.Logger
	clock     func() time.Time
	metrics   *observability.MetricsCollector
	tracer    *observability.TracerProvider

	pendingTTL    time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	pending map[string]*fsevent.PendingApproval
	grants  map[grantKey]struct{}
}

// NewCoordinator creates a coordinator executing through runner and talking
// to clients through transport.
func NewCoordinator(runner ToolRunner, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner:    runner,
		transport: transport,
		logger:    logging.NewComponentLogger("Approval"),
		clock:     time.Now,
		tracer:    observability.NoopTracer(),
		pending:   make(map[string]*fsevent.PendingApproval),
		grants:    make(map[grantKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleAgentMessage parses an fsEvent envelope from an agent connection and
// handles it. Malformed requests are answered with an error response.
func (c *Coordinator) HandleAgentMessage(ctx context.Context, agentID string, env fsevent.Envelope) {
	defer c.recoverPanic("agent message")

	req, err := ParseRequest(agentID, env)
	if err != nil {
		c.logger.Warn("invalid request %s from %s: %v", env.RequestID, agentID, err)
		if req.AgentID == "" {
			return
		}
		c.sendToAgent(req.AgentID, failureResponse(req, "", "", err))
		return
	}
	c.HandleRequest(ctx, req)
}

// HandleRequest decides whether req runs now or waits for the parent.
func (c *Coordinator) HandleRequest(ctx context.Context, req fsevent.MutationRequest) {
	defer c.recoverPanic("request")

	req = normalize(req)
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanApprovalRequest,
		observability.RequestAttrs(req.RequestID, req.AgentID, string(req.Action), req.FilePath)...)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	if err := c.validate(req); err != nil {
		spanErr = err
		c.logger.Warn("rejecting request %s: %v", req.RequestID, err)
		c.sendToAgent(req.AgentID, failureResponse(req, "", "", err))
		return
	}

	if !req.Action.RequiresApproval() {
		c.executeReadOnly(ctx, req)
		return
	}

	parent, ok := c.transport.ResolveParent(req.AgentID)
	if !ok || parent == nil {
		c.logger.Debug("no parent for agent %s, executing %s directly", req.AgentID, req.Action)
		c.metrics.RecordApproval(ctx, string(req.Action), "direct")
		c.execute(ctx, req, nil, id.NewMessageID())
		return
	}
	if c.HasGrant(req.AgentID, req.FilePath) {
		c.logger.Debug("agent %s already granted %s", req.AgentID, req.FilePath)
		c.metrics.RecordApproval(ctx, string(req.Action), "granted")
		c.execute(ctx, req, parent, id.NewMessageID())
		return
	}

	entry := &fsevent.PendingApproval{
		MessageID: id.NewMessageID(),
		AgentID:   req.AgentID,
		Request:   req,
		Target:    parent,
		CreatedAt: c.clock(),
		Action:    req.Action,
		FilePath:  req.FilePath,
	}
	c.mu.Lock()
	c.pending[entry.MessageID] = entry
	c.mu.Unlock()
	c.metrics.AddPending(ctx, 1)

	msg := c.confirmationRequest(ctx, entry)
	c.logger.Info("awaiting approval %s from %s %s for %s %s",
		entry.MessageID, parent.Type, parent.ID, req.Action, req.FilePath)
	if err := c.transport.SendToConnection(parent.ID, msg); err != nil {
		c.logger.Warn("failed to deliver confirmation %s to %s: %v", entry.MessageID, parent.ID, err)
	}
	c.publish(ctx, msg)
}

// HandleConfirmation applies a local decision from a parent client.
func (c *Coordinator) HandleConfirmation(ctx context.Context, resp fsevent.ConfirmationResponse) {
	defer c.recoverPanic("confirmation")

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanApprovalConfirmation)
	defer span.End()

	entry, owner := c.takeFrom(resp.MessageID, resp.From)
	if entry == nil {
		if owner != "" {
			c.logger.Warn("confirmation for approval %q from %s ignored: it was sent to %s", resp.MessageID, resp.From, owner)
			return
		}
		c.logger.Warn("confirmation for unknown approval %q ignored", resp.MessageID)
		return
	}
	if strings.EqualFold(strings.TrimSpace(resp.UserMessage), "approve") {
		c.approve(ctx, entry)
		return
	}
	c.reject(ctx, entry, DefaultRejectionReason, fserrors.KindApprovalRejected)
}

// HandleRemoteNotification applies a decision relayed from another process.
func (c *Coordinator) HandleRemoteNotification(ctx context.Context, n fsevent.RemoteNotification) {
	defer c.recoverPanic("remote notification")

	if strings.TrimSpace(n.MessageID) == "" {
		c.logger.Warn("malformed remote notification without messageId ignored (state=%q)", n.State)
		return
	}

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanApprovalConfirmation)
	defer span.End()

	entry := c.take(n.MessageID)
	if entry == nil {
		c.logger.Warn("remote notification for unknown approval %q ignored", n.MessageID)
		return
	}
	if n.State == fsevent.RemoteStateApproved {
		c.approve(ctx, entry)
		return
	}
	reason := strings.TrimSpace(n.Reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	c.reject(ctx, entry, reason, fserrors.KindApprovalRejected)
}

// Pending returns a snapshot of outstanding approvals, oldest first.
func (c *Coordinator) Pending() []fsevent.PendingApproval {
	c.mu.Lock()
	out := make([]fsevent.PendingApproval, 0, len(c.pending))
	for _, entry := range c.pending {
		out = append(out, *entry)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

// HasGrant reports whether agentID may mutate filePath without asking.
func (c *Coordinator) HasGrant(agentID, filePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.grants[grantKey{agentID: agentID, filePath: filepath.Clean(filePath)}]
	return ok
}

// Run sweeps expired approvals until ctx is done. It returns immediately
// when no TTL is configured.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.pendingTTL <= 0 {
		return nil
	}
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweepExpired(ctx)
		}
	}
}

func (c *Coordinator) sweepExpired(ctx context.Context) int {
	if c.pendingTTL <= 0 {
		return 0
	}
	now := c.clock()
	var expired []*fsevent.PendingApproval
	c.mu.Lock()
	for messageID, entry := range c.pending {
		if now.Sub(entry.CreatedAt) >= c.pendingTTL {
			delete(c.pending, messageID)
			expired = append(expired, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range expired {
		c.metrics.AddPending(ctx, -1)
		c.logger.Info("approval %s for %s expired after %s", entry.MessageID, entry.FilePath, c.pendingTTL)
		c.reject(ctx, entry, ExpiredReason, fserrors.KindApprovalExpired)
	}
	return len(expired)
}

func (c *Coordinator) validate(req fsevent.MutationRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if req.Action.RequiresApproval() && c.workspace != nil && !c.workspace.IsPathWithinWorkspace(req.FilePath) {
		return fserrors.Newf(fserrors.KindPathNotInWorkspace,
			"File path must be within one of the workspace directories: %s", strings.Join(c.workspace.Directories(), ", "))
	}
	return nil
}

// take removes and returns the pending entry, or nil when it is unknown or
// was already consumed.
func (c *Coordinator) take(messageID string) *fsevent.PendingApproval {
	entry, _ := c.takeFrom(messageID, "")
	return entry
}

// takeFrom is take limited to the connection the approval was sent to. A
// non-empty sender that does not own the entry leaves it pending and gets
// the owner's id back.
func (c *Coordinator) takeFrom(messageID, sender string) (*fsevent.PendingApproval, string) {
	c.mu.Lock()
	entry, ok := c.pending[messageID]
	if ok && sender != "" && entry.Target != nil && entry.Target.ID != sender {
		c.mu.Unlock()
		return nil, entry.Target.ID
	}
	if ok {
		delete(c.pending, messageID)
	}
	c.mu.Unlock()
	if !ok {
		return nil, ""
	}
	c.metrics.AddPending(context.Background(), -1)
	return entry, ""
}

func (c *Coordinator) grant(agentID, filePath string) {
	c.mu.Lock()
	c.grants[grantKey{agentID: agentID, filePath: filePath}] = struct{}{}
	c.mu.Unlock()
}

func (c *Coordinator) approve(ctx context.Context, entry *fsevent.PendingApproval) {
	c.logger.Info("approval %s granted: %s may %s %s", entry.MessageID, entry.AgentID, entry.Action, entry.FilePath)
	c.grant(entry.AgentID, entry.FilePath)
	c.metrics.RecordApproval(ctx, string(entry.Action), "approved")
	c.execute(ctx, entry.Request, entry.Target, entry.MessageID)
}

func (c *Coordinator) reject(ctx context.Context, entry *fsevent.PendingApproval, reason string, kind fserrors.Kind) {
	c.logger.Info("approval %s rejected: %s", entry.MessageID, reason)
	outcome := "rejected"
	if kind == fserrors.KindApprovalExpired {
		outcome = "expired"
	}
	c.metrics.RecordApproval(ctx, string(entry.Action), outcome)

	req := entry.Request
	c.sendToAgent(req.AgentID, fsevent.AgentResponse{
		Type:       fsevent.TypeFSEventResponse,
		RequestID:  req.RequestID,
		Action:     req.Action,
		Success:    false,
		StateEvent: fsevent.StateRejected,
		MessageID:  entry.MessageID,
		Error:      reason,
		ErrorType:  string(kind),
	})
	c.publish(ctx, fsevent.ApprovalMessage{
		Type:       fsevent.TypeFSEvent,
		MessageID:  entry.MessageID,
		ThreadID:   req.RequestID,
		AgentID:    req.AgentID,
		StateEvent: fsevent.StateRejected,
		Action:     req.Action,
		FilePath:   req.FilePath,
		Reason:     reason,
		ErrorType:  string(kind),
		Timestamp:  c.clock(),
	})
}

func (c *Coordinator) sendToAgent(agentID string, msg any) {
	if err := c.transport.SendToAgent(agentID, msg); err != nil {
		c.logger.Warn("failed to respond to agent %s: %v", agentID, err)
	}
}

func (c *Coordinator) publish(ctx context.Context, msg any) {
	if c.remote == nil {
		return
	}
	if err := c.remote.Publish(ctx, msg); err != nil {
		c.logger.Warn("failed to mirror approval message remotely: %v", err)
	}
}

func (c *Coordinator) recoverPanic(stage string) {
	if r := recover(); r != nil {
		c.logger.Error("recovered from panic while handling %s: %v", stage, r)
	}
}

func failureResponse(req fsevent.MutationRequest, state fsevent.StateEvent, messageID string, err error) fsevent.AgentResponse {
	resp := fsevent.AgentResponse{
		Type:       fsevent.TypeFSEventResponse,
		RequestID:  req.RequestID,
		Action:     req.Action,
		Success:    false,
		StateEvent: state,
		MessageID:  messageID,
		Error:      err.Error(),
		ErrorType:  string(fserrors.KindOf(err)),
	}
	if resp.ErrorType == "" {
		resp.ErrorType = "unknown"
	}
	return resp
}
