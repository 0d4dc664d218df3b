package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/internal/services"
)

// webhookPublishTimeout bounds the background publish, including retries.
const webhookPublishTimeout = 30 * time.Second

// maxWebhookBody caps ingested payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type webhookAccepted struct {
	WorkflowID string `json:"workflow_id"`
}

// HandleWebhook ingests an external webhook for a workflow and fans it out
// to the workflow's channel. The endpoint is public; the workflow id acts as
// the capability. Delivery is fire-and-forget: the webhook caller gets a 202
// once the event is queued, and a failed publish is only logged.
// (POST /webhooks/:workflowID)
func (s *Server) HandleWebhook(c echo.Context) error {
	workflowID := c.Param("workflowID")

	if _, err := s.repo.GetWorkflow(c.Request().Context(), workflowID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "webhook not found")
		}
		s.logger.Error("webhook workflow lookup failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"path":   c.Request().URL.Path,
		"method": c.Request().Method,
		"query":  c.QueryParams(),
		"body":   json.RawMessage(normalizeBody(body)),
	})
	if err != nil {
		s.logger.Error("webhook payload encoding failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	// Detach from the request context: the caller should not wait out the
	// retry budget, and hanging up must not cancel delivery.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookPublishTimeout)
		defer cancel()
		if err := s.publisher.PublishWebhookReceived(ctx, workflowID, payload); err != nil {
			var pubErr *services.PublishError
			if errors.As(err, &pubErr) {
				s.logger.Error("webhook event delivery failed",
					"workflow_id", workflowID,
					"attempts", pubErr.Attempts,
					"error", err,
				)
				return
			}
			s.logger.Error("webhook event delivery failed", "workflow_id", workflowID, "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, webhookAccepted{WorkflowID: workflowID})
}

// normalizeBody returns body if it is already valid JSON, otherwise wraps it
// as a JSON string so the event payload stays well-formed.
func normalizeBody(body []byte) []byte {
	if len(body) == 0 {
		return []byte("null")
	}
	if json.Valid(body) {
		return body
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return []byte("null")
	}
	return quoted
}
