package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
)

type handler struct {
	deps    RouterDeps
	logger  logging.Logger
	version string
	started time.Time
}

type healthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version,omitempty"`
	Uptime      string            `json:"uptime"`
	Pending     int               `json:"pendingApprovals"`
	Connections int               `json:"connections"`
	Degraded    map[string]string `json:"degraded,omitempty"`
}

func (h *handler) health(c *gin.Context) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
	if h.deps.Approvals != nil {
		resp.Pending = len(h.deps.Approvals.Pending())
	}
	if h.deps.Connections != nil {
		resp.Connections = len(h.deps.Connections.Connections())
	}
	if h.deps.Degraded != nil {
		if degraded := h.deps.Degraded(); len(degraded) > 0 {
			resp.Status = "degraded"
			resp.Degraded = degraded
		}
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (h *handler) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: h.deps.Tools.Definitions()})
}

func (h *handler) toolSLA(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: h.deps.SLA.Snapshot()})
}

func (h *handler) findTool(name string) (tools.Definition, bool) {
	for _, def := range h.deps.Tools.Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return tools.Definition{}, false
}

// executeTool runs a read-only tool. Mutating tools are only reachable
// through the websocket approval flow.
func (h *handler) executeTool(c *gin.Context) {
	name := c.Param("name")
	def, ok := h.findTool(name)
	if !ok {
		writeError(c, http.StatusNotFound, fserrors.Invalid("Unknown tool: %s", name))
		return
	}
	if def.Mutating {
		writeError(c, http.StatusForbidden, fserrors.Newf(fserrors.KindApprovalRejected,
			"%s requires approval and must be requested over the websocket channel", name))
		return
	}

	args := map[string]any{}
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, fserrors.Invalid("invalid JSON body: %v", err))
		return
	}

	result := h.deps.Tools.Execute(c.Request.Context(), name, args)
	if result.Failed() {
		c.JSON(statusForKind(result.Error.Type), APIResponse{
			Data:      result,
			Error:     result.Error.Message,
			ErrorType: string(result.Error.Type),
		})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: result})
}

func (h *handler) listApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: h.deps.Approvals.Pending()})
}

type decisionRequest struct {
	UserMessage string `json:"userMessage"`
}

// decideApproval applies a local decision for an outstanding approval.
func (h *handler) decideApproval(c *gin.Context) {
	messageID := strings.TrimSpace(c.Param("messageId"))
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fserrors.Invalid("invalid JSON body: %v", err))
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(c, http.StatusBadRequest, fserrors.Invalid("userMessage is required"))
		return
	}

	found := false
	for _, entry := range h.deps.Approvals.Pending() {
		if entry.MessageID == messageID {
			found = true
			break
		}
	}
	if !found {
		writeError(c, http.StatusNotFound, fserrors.Newf(fserrors.KindInvalidParams, "no pending approval %s", messageID))
		return
	}

	h.deps.Approvals.HandleConfirmation(c.Request.Context(), fsevent.ConfirmationResponse{
		MessageID:   messageID,
		UserMessage: req.UserMessage,
	})
	h.logger.Info("approval %s decided over HTTP: %s", messageID, req.UserMessage)
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: gin.H{"messageId": messageID}})
}

func (h *handler) listConnections(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: h.deps.Connections.Connections()})
}

func writeError(c *gin.Context, status int, err error) {
	resp := APIResponse{Error: err.Error()}
	if toolErr, ok := fserrors.As(err); ok {
		resp.Error = toolErr.Display
		resp.ErrorType = string(toolErr.Kind)
	}
	c.AbortWithStatusJSON(status, resp)
}

// statusForKind maps a failure kind onto an HTTP status.
func statusForKind(kind fserrors.Kind) int {
	switch kind {
	case fserrors.KindInvalidParams:
		return http.StatusBadRequest
	case fserrors.KindPathNotInWorkspace, fserrors.KindPermissionDenied, fserrors.KindApprovalRejected:
		return http.StatusForbidden
	case fserrors.KindFileNotFound:
		return http.StatusNotFound
	case fserrors.KindTargetIsDirectory, fserrors.KindPathIsNotDirectory:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
