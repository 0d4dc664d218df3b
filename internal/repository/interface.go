package repository

import (
	"context"
	"errors"

	"github.com/usefloww/floww-backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the lookup and provisioning capability for users,
// workspaces and workflows. Channel authorization treats it as the single
// source of ownership truth.
type Repository interface {
	// GetUserByExternalID looks up a user by the identity provider's
	// subject id. Returns ErrNotFound when no user exists yet.
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	// GetUserByID looks up a user by internal id.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// CreateUserWithWorkspace creates a user and its default workspace as
	// one atomic operation. When a concurrent caller wins the race on the
	// same external id, the losing create degrades to a re-read and
	// returns the already-created user.
	CreateUserWithWorkspace(ctx context.Context, externalID string) (*models.User, error)
	// GetWorkflow looks up a workflow by id. Returns ErrNotFound when the
	// workflow does not exist.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// CreateWorkflow inserts a workflow into its workspace.
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// Ping verifies store connectivity.
	Ping(ctx context.Context) error
}
