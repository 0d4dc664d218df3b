package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/usefloww/floww-backend/internal/config"
	"github.com/usefloww/floww-backend/internal/logging"
	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/pkg/models"
)

// Seeds a local-dev workspace with a user and a few workflows, so the broker
// proxies and channel tokens have something to authorize against.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	logger.Info("Schema ensured")

	// Idempotent: CreateUserWithWorkspace re-reads on a replayed external id,
	// so rerunning the seed reuses the same workspace.
	const externalID = "seed|local-dev-user"
	user, err := store.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = store.CreateUserWithWorkspace(ctx, externalID)
	}
	if err != nil {
		log.Fatalf("Failed to seed user: %v", err)
	}
	logger.Info("Seed user ready", "user_id", user.ID, "workspace_id", user.WorkspaceID)

	workflows := []string{"Summarizer", "Fact Checker", "Code Reviewer"}
	for _, name := range workflows {
		wf := &models.Workflow{WorkspaceID: user.WorkspaceID, Name: name}
		if err := store.CreateWorkflow(ctx, wf); err != nil {
			log.Printf("Failed to create workflow %s: %v", name, err)
			continue
		}
		logger.Info("Seeded workflow",
			"name", name,
			"workflow_id", wf.ID,
			"channel", "workflow:"+wf.ID,
		)
	}

	logger.Info("Seeding complete")
}
