package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/pkg/models"
)

// AccessService decides channel access by workspace membership. It holds no
// state of its own; ownership is resolved through the repository on every
// call.
type AccessService struct {
	repo repository.Repository
}

// NewAccessService creates a new AccessService.
func NewAccessService(repo repository.Repository) *AccessService {
	return &AccessService{repo: repo}
}

// CanAccessWorkflow reports whether user may read the workflow's channel.
// An unknown workflow id is simply not accessible: the caller gets the same
// answer as for a workflow in someone else's workspace, so authorization
// responses never leak whether a workflow exists. The error return is for
// store failures only.
func (s *AccessService) CanAccessWorkflow(ctx context.Context, user *models.User, workflowID string) (bool, error) {
	if user == nil || !models.ValidWorkflowID(workflowID) {
		return false, nil
	}

	workflow, err := s.repo.GetWorkflow(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve workflow workspace: %w", err)
	}

	return workflow.WorkspaceID == user.WorkspaceID, nil
}
