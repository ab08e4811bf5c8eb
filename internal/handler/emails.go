package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/compose"
	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/middleware"
	"github.com/Hexploration-Inc/orai/internal/sync"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// MessageReader reads an owner's cached messages.
type MessageReader interface {
	ListMessages(ctx context.Context, ownerID string, f db.ListFilter) ([]*types.Message, error)
	GetMessage(ctx context.Context, ownerID, id string) (*types.Message, error)
}

// Mutator propagates actions and outbound mail. *mutation.Propagator
// implements it.
type Mutator interface {
	Apply(ctx context.Context, scope types.RequestScope, messageID string, action types.Action) (*types.Message, error)
	Send(ctx context.Context, scope types.RequestScope, env compose.Envelope) (string, error)
}

type EmailHandler struct {
	Messages  MessageReader
	Blobs     blob.Store
	Mutations Mutator
	Syncs     SyncQueue
	Logger    *slog.Logger
}

type messageDetail struct {
	*types.Message
	BodyHTML string `json:"bodyHtml"`
}

type modifyBody struct {
	Action string `json:"action" binding:"required"`
}

// List returns cached messages, newest first.
func (h *EmailHandler) List(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	f := db.ListFilter{View: c.DefaultQuery("view", db.ViewAll)}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", types.ErrValidation))
			return
		}
		f.Limit = n
	}

	msgs, err := h.Messages.ListMessages(c.Request.Context(), scope.OwnerID, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Get returns one message with its HTML body. A message whose body blob is
// gone comes back with an empty body.
func (h *EmailHandler) Get(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	ctx := c.Request.Context()

	msg, err := h.Messages.GetMessage(ctx, scope.OwnerID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	detail := messageDetail{Message: msg}
	if msg.BodyRef != "" && h.Blobs != nil {
		body, err := h.Blobs.Get(ctx, msg.BodyRef)
		switch {
		case err == nil:
			detail.BodyHTML = string(body)
		case errors.Is(err, types.ErrNotFound):
			h.Logger.Warn("body blob missing", "owner", scope.OwnerID, "message_id", msg.ID, "key", msg.BodyRef)
		default:
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, detail)
}

// Modify applies archive, trash or spam.
func (h *EmailHandler) Modify(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var body modifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	action, err := types.ParseAction(body.Action)
	if err != nil {
		writeError(c, err)
		return
	}

	msg, err := h.Mutations.Apply(c.Request.Context(), scope, c.Param("id"), action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": msg})
}

// Send composes and sends a message from the session's mailbox.
func (h *EmailHandler) Send(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var env compose.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	id, err := h.Mutations.Send(c.Request.Context(), scope, env)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// Sync queues a background sync of the session's mailbox.
func (h *EmailHandler) Sync(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	if !h.Syncs.Submit(sync.Job{OwnerID: scope.OwnerID, Credentials: scope.Credentials}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync queue is full, try again later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
