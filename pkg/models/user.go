// Package models defines the domain models for the floww realtime backend.
package models

import (
	"time"
)

// User is the internal identity mapped 1:1 to an external provider subject.
// Users are created lazily on first successful credential verification and
// are never deleted by this service.
type User struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"` // provider "sub" claim
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Workspace owns zero or more workflows. A user belongs to exactly one
// workspace; channel access is decided by comparing workspace ids.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
