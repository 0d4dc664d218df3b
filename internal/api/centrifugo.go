package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/usefloww/floww-backend/internal/auth"
	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/pkg/models"
)

// connectRequest mirrors the broker's connect-proxy request body. The
// client's credentials arrive in the forwarded Authorization header, not in
// the body.
type connectRequest struct {
	Client    string          `json:"client"`
	Transport string          `json:"transport"`
	Protocol  string          `json:"protocol"`
	Encoding  string          `json:"encoding"`
	Name      string          `json:"name,omitempty"`
	Version   string          `json:"version,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type connectResult struct {
	User string                 `json:"user"`
	Info map[string]interface{} `json:"info,omitempty"`
}

type connectResponse struct {
	Result *connectResult `json:"result"`
}

// subscribeRequest mirrors the broker's subscribe-proxy request body. User is
// the reference the broker recorded at connect time.
type subscribeRequest struct {
	Client    string          `json:"client"`
	Transport string          `json:"transport"`
	Protocol  string          `json:"protocol"`
	Encoding  string          `json:"encoding"`
	User      string          `json:"user"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type subscribeResult struct {
	Info map[string]interface{} `json:"info,omitempty"`
}

type subscribeResponse struct {
	Result *subscribeResult `json:"result"`
}

// Proxy denials travel as error objects inside an HTTP 200; the broker turns
// them into a refused connection or subscription. The denial bytes are fixed
// so responses carry no signal beyond allow/deny: in particular, a missing
// workflow and a workflow in someone else's workspace deny identically.
var (
	connectDenied   = []byte(`{"error":{"code":4001,"message":"unauthenticated"}}`)
	subscribeDenied = []byte(`{"error":{"code":4003,"message":"permission denied"}}`)
)

// HandleConnect is the broker's connect callback. It authenticates the
// forwarded bearer token and tells the broker which user this connection
// belongs to. Retrying a failed connect is safe: the only side effect is
// first-login provisioning, which is idempotent.
// (POST /centrifugo/connect)
func (s *Server) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()

	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSONBlob(http.StatusOK, connectDenied)
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if s.allowAnonymous {
			s.logger.Debug("anonymous connection admitted", "client", req.Client)
			return c.JSON(http.StatusOK, connectResponse{Result: &connectResult{User: ""}})
		}
		return c.JSONBlob(http.StatusOK, connectDenied)
	}

	user, err := s.verifier.VerifyHeader(ctx, header)
	if errors.Is(err, auth.ErrProviderUnavailable) {
		// Distinct from a bad token: the broker should retry, not treat
		// the client as unauthenticated.
		s.logger.Error("connect callback cannot reach identity provider", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "identity provider unavailable")
	}
	if err != nil {
		s.logger.Info("connection denied", "client", req.Client, "transport", req.Transport)
		return c.JSONBlob(http.StatusOK, connectDenied)
	}

	s.logger.Info("connection accepted",
		"user_id", user.ID,
		"client", req.Client,
		"transport", req.Transport,
	)

	return c.JSON(http.StatusOK, connectResponse{
		Result: &connectResult{
			User: user.ID,
			Info: map[string]interface{}{"user_id": user.ID},
		},
	})
}

// HandleSubscribe is the broker's subscribe callback. It resolves the
// connection's user reference and applies the workspace access policy to the
// requested channel.
// (POST /centrifugo/subscribe)
func (s *Server) HandleSubscribe(c echo.Context) error {
	ctx := c.Request().Context()

	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSONBlob(http.StatusOK, subscribeDenied)
	}

	workflowID, ok := models.ParseChannel(req.Channel)
	if !ok {
		s.logger.Warn("subscription to non-workflow channel denied",
			"user_id", req.User,
			"channel", req.Channel,
		)
		return c.JSONBlob(http.StatusOK, subscribeDenied)
	}

	if req.User == "" {
		return c.JSONBlob(http.StatusOK, subscribeDenied)
	}

	user, err := s.repo.GetUserByID(ctx, req.User)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSONBlob(http.StatusOK, subscribeDenied)
	}
	if err != nil {
		s.logger.Error("subscribe callback cannot resolve user", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	allowed, err := s.access.CanAccessWorkflow(ctx, user, workflowID)
	if err != nil {
		s.logger.Error("subscribe callback access check failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if !allowed {
		s.logger.Warn("workflow subscription denied",
			"user_id", user.ID,
			"workflow_id", workflowID,
			"channel", req.Channel,
		)
		return c.JSONBlob(http.StatusOK, subscribeDenied)
	}

	s.logger.Info("workflow subscription allowed",
		"user_id", user.ID,
		"workflow_id", workflowID,
		"channel", req.Channel,
	)

	return c.JSON(http.StatusOK, subscribeResponse{
		Result: &subscribeResult{
			Info: map[string]interface{}{"workflow_id": workflowID, "user_id": user.ID},
		},
	})
}
