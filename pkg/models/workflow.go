package models

import (
	"time"
)

// Workflow is a deployable automation owned by a workspace. The realtime
// channel name is derived from the id via ChannelForWorkflow and is never
// stored alongside the workflow.
type Workflow struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}
