// Package api contains the HTTP handlers for the realtime backend: the
// Centrifugo connect/subscribe proxy callbacks and the authenticated REST
// surface (channel tokens, whoami, health).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/usefloww/floww-backend/internal/auth"
	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/internal/services"
	"github.com/usefloww/floww-backend/pkg/models"
)

// Verifier authenticates a forwarded Authorization header. Implemented by
// *auth.Auth.
type Verifier interface {
	VerifyHeader(ctx context.Context, header string) (*models.User, error)
}

// TokenIssuer mints channel tokens. Implemented by
// *services.ChannelTokenService.
type TokenIssuer interface {
	Issue(ctx context.Context, user *models.User, workflowID string) (*models.ChannelToken, error)
}

// WebhookPublisher fans ingested webhooks out to workflow channels.
// Implemented by *services.CentrifugoService.
type WebhookPublisher interface {
	PublishWebhookReceived(ctx context.Context, workflowID string, payload json.RawMessage) error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API handlers.
type Server struct {
	verifier  Verifier
	access    services.AccessChecker
	tokens    TokenIssuer
	publisher WebhookPublisher
	repo      repository.Repository
	logger    Logger

	// allowAnonymous admits unauthenticated broker connections with an
	// empty user id. Off unless explicitly configured.
	allowAnonymous bool
}

// NewServer creates a new Server.
func NewServer(verifier Verifier, access services.AccessChecker, tokens TokenIssuer, publisher WebhookPublisher, repo repository.Repository, logger Logger, allowAnonymous bool) *Server {
	return &Server{
		verifier:       verifier,
		access:         access,
		tokens:         tokens,
		publisher:      publisher,
		repo:           repo,
		logger:         logger,
		allowAnonymous: allowAnonymous,
	}
}

// RegisterPublicRoutes mounts the endpoints that stay outside RequireAuth:
// the broker callbacks (denial must reach the broker as a 200 with an error
// object, not an HTTP 401), webhook ingestion and health.
func (s *Server) RegisterPublicRoutes(e *echo.Echo) {
	e.POST("/centrifugo/connect", s.HandleConnect)
	e.POST("/centrifugo/subscribe", s.HandleSubscribe)
	e.POST("/webhooks/:workflowID", s.HandleWebhook)
	e.GET("/health", s.HandleHealth)
}

// RegisterAPIRoutes mounts the authenticated REST endpoints on a group that
// already carries the auth middleware.
func (s *Server) RegisterAPIRoutes(g *echo.Group) {
	g.POST("/workflows/:workflowID/channel-token", s.HandleChannelToken)
	g.GET("/whoami", s.HandleWhoami)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth reports liveness plus store reachability.
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "floww-backend",
	}
	if err := s.repo.Ping(c.Request().Context()); err != nil {
		s.logger.Error("health check store ping failed", "error", err)
		status.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}

// HandleWhoami returns the authenticated caller's identity.
// (GET /api/v1/whoami)
func (s *Server) HandleWhoami(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, user)
}
