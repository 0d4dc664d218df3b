// Package auth verifies bearer credentials against the identity provider's
// published keys and resolves them to internal users, provisioning a user
// and default workspace on first sight of a new subject.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// userContextKey is the echo context key under which RequireAuth stores the
// authenticated *models.User.
const userContextKey = "floww.user"

// Auth verifies provider-signed bearer tokens and maps them to users.
type Auth struct {
	provider Provider
	keys     *keyCache
	repo     repository.Repository
	logger   Logger
}

// New creates an Auth using the configured identity provider. Key material
// is fetched lazily; construction never calls the network.
func New(provider Provider, repo repository.Repository, logger Logger) *Auth {
	return &Auth{
		provider: provider,
		keys:     newKeyCache(provider, nil),
		repo:     repo,
		logger:   logger,
	}
}

// VerifyHeader authenticates a raw Authorization header value, as forwarded
// by the broker's connect callback or sent by an API client.
func (a *Auth) VerifyHeader(ctx context.Context, header string) (*models.User, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("%w: missing bearer credentials", ErrUnauthenticated)
	}
	return a.Verify(ctx, strings.TrimSpace(header[len(prefix):]))
}

// Verify validates a bearer token and returns the internal user, creating
// the user and its default workspace on first sight of the subject. The
// create is idempotent on the external subject id: a concurrent first-seen
// race resolves through the store's uniqueness constraint, never an
// in-process lock.
func (a *Auth) Verify(ctx context.Context, rawToken string) (*models.User, error) {
	subject, err := a.verifyToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.GetUserByExternalID(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = a.repo.CreateUserWithWorkspace(ctx, subject)
		if err == nil {
			a.logger.Info("provisioned user and default workspace",
				"user_id", user.ID, "workspace_id", user.WorkspaceID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}

// verifyToken checks signature, temporal claims and issuer, and extracts the
// subject. On a key-id miss the key cache is refreshed at most once before
// the token is rejected, so provider key rotation does not lock users out.
func (a *Auth) verifyToken(ctx context.Context, rawToken string) (string, error) {
	issuer, err := a.provider.Issuer(ctx)
	if err != nil {
		return "", err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return a.signingKey(ctx, t)
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

func (a *Auth) signingKey(ctx context.Context, t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if key, ok := a.keys.key(kid); ok {
		return key, nil
	}

	if err := a.keys.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := a.keys.key(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("no key matches kid %q", kid)
}

// RequireAuth is echo middleware that authenticates the Authorization header
// and stores the resolved user in the request context. A provider outage is
// surfaced as 503, distinct from the 401 for bad credentials.
func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := a.VerifyHeader(c.Request().Context(), c.Request().Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				a.logger.Error("identity provider unavailable", "error", err)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "identity provider unavailable")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

// CurrentUser returns the user stored by RequireAuth.
func CurrentUser(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(userContextKey).(*models.User)
	return user, ok
}

// SetCurrentUser stores a user the way RequireAuth would. It exists for
// handler tests and non-middleware entry points.
func SetCurrentUser(c echo.Context, user *models.User) {
	c.Set(userContextKey, user)
}
