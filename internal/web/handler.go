// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the login flow over HTTP.
//
//	POST /login   form or JSON {username, password} -> 200 {"subject"} | 401
//	GET  /whoami  -> 200 {"subject"} | 401
//	POST /logout  -> 204
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// SessionOpener binds a session store to one HTTP exchange.
type SessionOpener func(w http.ResponseWriter, r *http.Request) auth.SessionStore

// RequestObserver records completed requests.
type RequestObserver interface {
	Observe(route string, status int, elapsed time.Duration)
}

// Handler serves the auth routes.
type Handler struct {
	manager  *auth.Manager
	sessions SessionOpener
	observer RequestObserver
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver records per-route request metrics.
func WithObserver(observer RequestObserver) Option {
	return func(h *Handler) {
		h.observer = observer
	}
}

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(manager *auth.Manager, sessions SessionOpener, opts ...Option) (*Handler, error) {
	if manager == nil || sessions == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("manager and session opener are required")
	}
	h := &Handler{manager: manager, sessions: sessions, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router builds the gin engine. Call gin.SetMode before this to pick
// release or test mode.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(h.requestID, h.access, gin.CustomRecovery(h.recovered))

	r.POST("/login", h.login)
	r.GET("/whoami", h.whoami)
	r.POST("/logout", h.logout)
	return r
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password"`
}

type subjectResponse struct {
	Subject string `json:"subject"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	sessions := h.sessions(c.Writer, c.Request)
	if _, ok := h.manager.Login(c.Request.Context(), sessions, req.Username, req.Password); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, subjectResponse{Subject: req.Username})
}

func (h *Handler) whoami(c *gin.Context) {
	sessions := h.sessions(c.Writer, c.Request)
	subject, ok := h.manager.CurrentSubject(c.Request.Context(), sessions)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, subjectResponse{Subject: subject})
}

func (h *Handler) logout(c *gin.Context) {
	h.manager.Logout(c.Request.Context(), h.sessions(c.Writer, c.Request))
	c.Status(http.StatusNoContent)
}

// requestID reuses a well-formed incoming ULID or mints one, and attaches
// it to the request context for logging.
func (h *Handler) requestID(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if _, err := ulid.ParseStrict(id); err != nil {
		id = ulid.Make().String()
	}
	c.Header(RequestIDHeader, id)
	c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
	c.Next()
}

func (h *Handler) access(c *gin.Context) {
	start := time.Now()
	c.Next()
	elapsed := time.Since(start)

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	if h.observer != nil {
		h.observer.Observe(route, status, elapsed)
	}
	h.logger.InfoContext(c.Request.Context(), "http request",
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (h *Handler) recovered(c *gin.Context, recovered any) {
	h.logger.ErrorContext(c.Request.Context(), "panic serving request",
		"code", "WEB_PANIC",
		"panic", recovered,
		"route", c.FullPath(),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
