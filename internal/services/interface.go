// Package services implements channel access control, channel token
// issuance and event publishing against the Centrifugo broker.
package services

import (
	"context"

	"github.com/usefloww/floww-backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccessChecker decides whether a user may read a workflow's channel.
type AccessChecker interface {
	CanAccessWorkflow(ctx context.Context, user *models.User, workflowID string) (bool, error)
}

// Publisher pushes workflow events to the broker. The workflow engine treats
// failures as non-fatal: a lost notification never rolls back a workflow
// state transition.
type Publisher interface {
	Publish(ctx context.Context, event *models.WorkflowEvent) error
}
