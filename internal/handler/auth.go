package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/auth"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/session"
	"github.com/Hexploration-Inc/orai/internal/sync"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// OAuthFlow is the authorization-code exchange. *auth.Authenticator
// implements it.
type OAuthFlow interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (types.Credentials, error)
}

// UserStore records mailbox owners.
type UserStore interface {
	UpsertUser(ctx context.Context, u types.User) error
}

// SyncQueue accepts background sync jobs. *sync.Dispatcher implements it.
type SyncQueue interface {
	Submit(job sync.Job) bool
}

type AuthHandler struct {
	OAuth  OAuthFlow
	Opener gmail.Opener
	Users  UserStore
	Binder *session.Binder
	Syncs  SyncQueue
	WebURL string
	Secure bool
	Logger *slog.Logger
}

// Login redirects to the provider consent screen.
func (h *AuthHandler) Login(c *gin.Context) {
	state := auth.NewState()
	http.SetCookie(c.Writer, auth.StateCookie(state, h.Secure))
	c.Redirect(http.StatusFound, h.OAuth.AuthURL(state))
}

// Callback completes the flow: exchange the code, identify the owner, bind
// a session, queue the first sync and send the browser back to the app.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.Logger

	stateCookie, _ := c.Cookie(auth.StateCookieName)
	if err := auth.CheckState(stateCookie, c.Query("state")); err != nil {
		log.Warn("oauth callback rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}
	expired := auth.StateCookie("", h.Secure)
	expired.MaxAge = -1
	http.SetCookie(c.Writer, expired)

	creds, err := h.OAuth.Exchange(ctx, c.Query("code"))
	if err != nil {
		h.authFailed(c, "exchange code", err)
		return
	}
	mb, err := h.Opener.Open(ctx, creds)
	if err != nil {
		h.authFailed(c, "open mailbox", err)
		return
	}
	profile, err := mb.Profile(ctx)
	if err != nil {
		h.authFailed(c, "fetch profile", err)
		return
	}
	if err := h.Users.UpsertUser(ctx, types.User{ID: profile.ID, Email: profile.Email}); err != nil {
		h.authFailed(c, "store user", err)
		return
	}

	sid := session.NewSessionID()
	h.Binder.Store().Put(sid, session.Entry{OwnerID: profile.ID, Email: profile.Email, Credentials: creds})
	token, err := h.Binder.Issue(sid)
	if err != nil {
		h.Binder.Store().Delete(sid)
		h.authFailed(c, "issue session", err)
		return
	}
	http.SetCookie(c.Writer, h.Binder.Cookie(token))

	if !h.Syncs.Submit(sync.Job{OwnerID: profile.ID, Credentials: creds}) {
		log.Warn("initial sync not queued", "owner", profile.ID)
	}
	log.Info("signed in", "owner", profile.ID)
	c.Redirect(http.StatusFound, h.WebURL)
}

func (h *AuthHandler) authFailed(c *gin.Context, step string, err error) {
	_ = c.Error(err)
	h.Logger.Error("oauth callback failed", "step", step, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
}

// Logout drops the session and clears the cookie. It succeeds without a
// session too.
func (h *AuthHandler) Logout(c *gin.Context) {
	if value, err := c.Cookie(session.CookieName); err == nil {
		if sid, err := h.Binder.SessionID(value); err == nil {
			h.Binder.Store().Delete(sid)
		}
	}
	http.SetCookie(c.Writer, h.Binder.ClearCookie())
	c.JSON(http.StatusOK, gin.H{"success": true})
}
