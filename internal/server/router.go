// Package server assembles the orai HTTP router and server.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/handler"
	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/middleware"
	"github.com/Hexploration-Inc/orai/internal/session"
)

// Store is the metadata store the handlers read and write.
type Store interface {
	handler.UserStore
	handler.MessageReader
}

// Breaker reports the provider circuit state. *gmail.Client implements it.
type Breaker interface {
	BreakerState() string
}

type Deps struct {
	OAuth     handler.OAuthFlow
	Opener    gmail.Opener
	Store     Store
	Blobs     blob.Store
	Binder    *session.Binder
	Mutations handler.Mutator
	Syncs     handler.SyncQueue
	Breaker   Breaker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	WebURL    string
	Secure    bool
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "sessions": deps.Binder.Store().Len()}
		if deps.Breaker != nil {
			body["provider"] = deps.Breaker.BreakerState()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	authHandler := &handler.AuthHandler{
		OAuth:  deps.OAuth,
		Opener: deps.Opener,
		Users:  deps.Store,
		Binder: deps.Binder,
		Syncs:  deps.Syncs,
		WebURL: deps.WebURL,
		Secure: deps.Secure,
		Logger: logger,
	}
	r.GET("/auth/google", authHandler.Login)
	r.GET("/auth/google/callback", authHandler.Callback)
	r.POST("/auth/logout", authHandler.Logout)

	protected := r.Group("/")
	protected.Use(middleware.RequireSession(deps.Binder))

	meHandler := &handler.MeHandler{Opener: deps.Opener}
	protected.GET("/me", meHandler.Get)

	emailHandler := &handler.EmailHandler{
		Messages:  deps.Store,
		Blobs:     deps.Blobs,
		Mutations: deps.Mutations,
		Syncs:     deps.Syncs,
		Logger:    logger,
	}
	protected.GET("/emails", emailHandler.List)
	protected.GET("/emails/:id", emailHandler.Get)
	protected.POST("/emails/send", emailHandler.Send)
	protected.POST("/emails/sync", emailHandler.Sync)
	protected.POST("/emails/:id/modify", emailHandler.Modify)

	return r
}
