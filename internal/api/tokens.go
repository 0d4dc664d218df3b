package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/usefloww/floww-backend/internal/auth"
	"github.com/usefloww/floww-backend/internal/services"
)

// HandleChannelToken issues a short-lived token scoping the caller to one
// workflow channel, for clients that connect to the broker directly instead
// of through the connect proxy.
// (POST /api/v1/workflows/:workflowID/channel-token)
func (s *Server) HandleChannelToken(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	workflowID := c.Param("workflowID")

	token, err := s.tokens.Issue(c.Request().Context(), user, workflowID)
	if errors.Is(err, services.ErrForbidden) {
		s.logger.Warn("channel token denied", "user_id", user.ID, "workflow_id", workflowID)
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	if err != nil {
		s.logger.Error("channel token issuance failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	s.logger.Info("channel token issued", "user_id", user.ID, "channel", token.Channel.String())
	return c.JSON(http.StatusOK, token)
}
