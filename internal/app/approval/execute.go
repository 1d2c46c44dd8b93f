package approval

import (
	"context"
	"time"

	"fsgate/internal/domain/filediff"
	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	toolspolicy "fsgate/internal/infra/tools"
	"fsgate/internal/infra/tools/builtin/fileops"
	"fsgate/internal/shared/observability"
)

// executeReadOnly runs a non-gated action and answers the agent.
func (c *Coordinator) executeReadOnly(ctx context.Context, req fsevent.MutationRequest) {
	name, args, err := toolCall(req)
	if err != nil {
		c.sendToAgent(req.AgentID, failureResponse(req, "", "", err))
		return
	}
	start := c.clock()
	result := c.runner.Execute(ctx, name, args)
	c.metrics.RecordOperation(ctx, string(req.Action), status(result), c.clock().Sub(start))
	if req.Action == fsevent.ActionGrep {
		if strategies, ok := result.Metadata["strategies"].([]string); ok {
			for _, s := range strategies {
				c.metrics.RecordGrepStrategy(ctx, s)
			}
		}
	}
	c.sendToAgent(req.AgentID, agentResponse(req, "", "", result))
}

// execute runs a gated action that has been cleared to proceed and fans the
// outcome out to the agent, the target client and the remote transport.
func (c *Coordinator) execute(ctx context.Context, req fsevent.MutationRequest, target *fsevent.TargetClient, messageID string) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanApprovalExecute,
		observability.RequestAttrs(req.RequestID, req.AgentID, string(req.Action), req.FilePath)...)

	start := c.clock()
	var result tools.Result
	name, args, err := toolCall(req)
	if err != nil {
		result = tools.ErrorResult(err)
	} else {
		result = c.runner.Execute(toolspolicy.WithApproved(ctx), name, args)
	}
	duration := c.clock().Sub(start)
	c.metrics.RecordOperation(ctx, string(req.Action), status(result), duration)

	state := successState(req.Action)
	if result.Failed() {
		state = failureState(req.Action)
		c.logger.Warn("%s %s failed for agent %s: %s", req.Action, req.FilePath, req.AgentID, result.LLMContent)
	} else {
		c.logger.Info("%s %s completed for agent %s in %s", req.Action, req.FilePath, req.AgentID, duration.Round(time.Millisecond))
	}

	c.sendToAgent(req.AgentID, agentResponse(req, state, messageID, result))

	msg := c.outcomeMessage(req, state, messageID, result)
	if target != nil {
		if err := c.transport.SendToConnection(target.ID, msg); err != nil {
			c.logger.Warn("failed to notify %s %s of %s: %v", target.Type, target.ID, state, err)
		}
	}
	c.publish(ctx, msg)

	var spanErr error
	if result.Error != nil {
		spanErr = resultError{result.Error}
	}
	observability.EndSpan(span, spanErr)
}

func (c *Coordinator) outcomeMessage(req fsevent.MutationRequest, state fsevent.StateEvent, messageID string, result tools.Result) fsevent.ApprovalMessage {
	msg := fsevent.ApprovalMessage{
		Type:       fsevent.TypeFSEvent,
		MessageID:  messageID,
		ThreadID:   req.RequestID,
		AgentID:    req.AgentID,
		StateEvent: state,
		Action:     req.Action,
		FilePath:   req.FilePath,
		Timestamp:  c.clock(),
	}
	if result.Error != nil {
		msg.Error = result.Error.Message
		msg.ErrorType = string(result.Error.Type)
		return msg
	}
	if result.FileDiff != nil {
		msg.Content = result.FileDiff.NewContent
		msg.Diff = result.FileDiff.Diff
		msg.DiffStat = result.FileDiff.DiffStat
	}
	if entries, ok := result.Metadata["entries"]; ok {
		msg.Entries = entries
	}
	return msg
}

// confirmationRequest builds the message asking the parent to decide. The
// diff preview is best effort: a failed preview still asks.
func (c *Coordinator) confirmationRequest(ctx context.Context, entry *fsevent.PendingApproval) fsevent.ApprovalMessage {
	req := entry.Request
	state := fsevent.StateAskForConfirmation
	if req.Action == fsevent.ActionListDirectory {
		state = fsevent.StateAskForConfirmationDir
	}
	msg := fsevent.ApprovalMessage{
		Type:       fsevent.TypeFSEvent,
		MessageID:  entry.MessageID,
		ThreadID:   req.RequestID,
		AgentID:    req.AgentID,
		StateEvent: state,
		Action:     req.Action,
		FilePath:   req.FilePath,
		Timestamp:  entry.CreatedAt,
	}
	if outcome, ok := c.preview(ctx, req); ok {
		msg.Content = outcome.NewContent
		msg.Diff = outcome.Diff
		msg.DiffStat = outcome.DiffStat
		c.logger.Debug("awaiting approval %s for %s:\n%s", entry.MessageID, req.FilePath, filediff.Colorize(outcome.Diff))
	}
	return msg
}

func (c *Coordinator) preview(ctx context.Context, req fsevent.MutationRequest) (fileops.EditOutcome, bool) {
	if c.previewer == nil {
		return fileops.EditOutcome{}, false
	}
	var (
		outcome fileops.EditOutcome
		err     error
	)
	switch req.Action {
	case fsevent.ActionWrite:
		var p fsevent.WritePayload
		if err = decode(req.Payload, &p); err == nil {
			outcome, err = c.previewer.PreviewWrite(ctx, fileops.WriteRequest{
				FilePath:          req.FilePath,
				Content:           fsevent.StringValue(p.Content),
				ModifiedByUser:    p.ModifiedByUser,
				AIProposedContent: p.AIProposedContent,
			})
		}
	case fsevent.ActionEdit:
		var p fsevent.EditPayload
		if err = decode(req.Payload, &p); err == nil {
			outcome, err = c.previewer.PreviewEdit(ctx, fileops.EditRequest{
				FilePath:             req.FilePath,
				OldString:            fsevent.StringValue(p.OldString),
				NewString:            fsevent.StringValue(p.NewString),
				ExpectedReplacements: p.ExpectedReplacements,
				ModifiedByUser:       p.ModifiedByUser,
				AIProposedContent:    p.AIProposedContent,
			})
		}
	default:
		return fileops.EditOutcome{}, false
	}
	if err != nil {
		c.logger.Debug("preview for %s %s unavailable: %v", req.Action, req.FilePath, err)
		return fileops.EditOutcome{}, false
	}
	return outcome, true
}

func agentResponse(req fsevent.MutationRequest, state fsevent.StateEvent, messageID string, result tools.Result) fsevent.AgentResponse {
	resp := fsevent.AgentResponse{
		Type:       fsevent.TypeFSEventResponse,
		RequestID:  req.RequestID,
		Action:     req.Action,
		Success:    !result.Failed(),
		StateEvent: state,
		MessageID:  messageID,
		Result:     result,
	}
	if result.Error != nil {
		resp.Error = result.Error.Message
		resp.ErrorType = string(result.Error.Type)
	}
	return resp
}

func successState(action fsevent.Action) fsevent.StateEvent {
	if action == fsevent.ActionListDirectory {
		return fsevent.StateDirectoryListedSuccess
	}
	return fsevent.StateFileWrite
}

func failureState(action fsevent.Action) fsevent.StateEvent {
	if action == fsevent.ActionListDirectory {
		return fsevent.StateDirectoryListError
	}
	return fsevent.StateFileWriteError
}

func status(result tools.Result) string {
	if result.Failed() {
		return "failure"
	}
	return "success"
}

type resultError struct {
	err *tools.ResultError
}

func (e resultError) Error() string { return e.err.Message }
