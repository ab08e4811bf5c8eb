package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/middleware"
)

type MeHandler struct {
	Opener gmail.Opener
}

// Get returns the live provider profile for the session's mailbox.
func (h *MeHandler) Get(c *gin.Context) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	ctx := c.Request.Context()

	mb, err := h.Opener.Open(ctx, scope.Credentials)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := mb.Profile(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            p.ID,
		"email":         p.Email,
		"messagesTotal": p.MessagesTotal,
		"threadsTotal":  p.ThreadsTotal,
	})
}
