package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/usefloww/floww-backend/pkg/models"
)

// pgUniqueViolation is the Postgres error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUserByExternalID looks up a user by the provider subject id.
func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getUser(ctx, "SELECT id, external_id, workspace_id, created_at FROM users WHERE external_id = $1", externalID)
}

// GetUserByID looks up a user by internal id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "SELECT id, external_id, workspace_id, created_at FROM users WHERE id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(ctx, query, arg).Scan(&user.ID, &user.ExternalID, &user.WorkspaceID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// CreateUserWithWorkspace inserts a user and its default workspace in a
// single transaction. Uniqueness of the external subject id is enforced by
// the users_external_id_key constraint, so a concurrent first-seen race
// resolves to exactly one user and one workspace: the losing insert rolls
// back (including the workspace row) and degrades to a re-read.
func (s *PostgresStore) CreateUserWithWorkspace(ctx context.Context, externalID string) (*models.User, error) {
	user := &models.User{
		ID:          uuid.New().String(),
		ExternalID:  externalID,
		WorkspaceID: uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
	}

	err := s.createUserTx(ctx, user)
	if isUniqueViolation(err) {
		return s.GetUserByExternalID(ctx, externalID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) createUserTx(ctx context.Context, user *models.User) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO workspaces (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)",
		user.WorkspaceID, user.ID, user.ID, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO users (id, external_id, workspace_id, created_at) VALUES ($1, $2, $3, $4)",
		user.ID, user.ExternalID, user.WorkspaceID, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return tx.Commit(ctx)
}

// GetWorkflow looks up a workflow by id.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	err := s.db.QueryRow(ctx,
		"SELECT id, workspace_id, name, created_at FROM workflows WHERE id = $1", id).
		Scan(&workflow.ID, &workflow.WorkspaceID, &workflow.Name, &workflow.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow: %w", err)
	}
	return &workflow, nil
}

// CreateWorkflow inserts a workflow into its workspace.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflows (id, workspace_id, name, created_at) VALUES ($1, $2, $3, $4)",
		workflow.ID, workflow.WorkspaceID, workflow.Name, workflow.CreatedAt)
	return err
}

// Ping verifies store connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
