package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/usefloww/floww-backend/internal/auth"
	"github.com/usefloww/floww-backend/internal/services"
	"github.com/usefloww/floww-backend/pkg/models"
)

// asUser simulates the auth middleware for handler tests.
func asUser(user *models.User) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user != nil {
				auth.SetCurrentUser(c, user)
			}
			return next(c)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("StoreReachable", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Ping", mock.Anything).Return(nil)
		_, e := newTestServer(&stubVerifier{}, repo, false)

		rec := doJSON(e, http.MethodGet, "/health", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("StoreDown", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Ping", mock.Anything).Return(errors.New("dial tcp: refused"))
		_, e := newTestServer(&stubVerifier{}, repo, false)

		rec := doJSON(e, http.MethodGet, "/health", "", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	})
}

func TestHandleWhoami(t *testing.T) {
	user := &models.User{ID: "u1", ExternalID: "ext-1", WorkspaceID: "ws1"}

	srv := NewServer(&stubVerifier{}, services.NewAccessService(new(MockRepository)), &stubIssuer{}, newRecordingPublisher(nil), new(MockRepository), noOpLogger{}, false)
	e := echo.New()
	g := e.Group("/api/v1", asUser(user))
	srv.RegisterAPIRoutes(g)

	rec := doJSON(e, http.MethodGet, "/api/v1/whoami", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u1"`)
	assert.Contains(t, rec.Body.String(), `"workspace_id":"ws1"`)
}

func TestHandleWhoami_Unauthenticated(t *testing.T) {
	srv := NewServer(&stubVerifier{}, services.NewAccessService(new(MockRepository)), &stubIssuer{}, newRecordingPublisher(nil), new(MockRepository), noOpLogger{}, false)
	e := echo.New()
	g := e.Group("/api/v1", asUser(nil))
	srv.RegisterAPIRoutes(g)

	rec := doJSON(e, http.MethodGet, "/api/v1/whoami", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleChannelToken(t *testing.T) {
	user := &models.User{ID: "u1", WorkspaceID: "ws1"}

	newTokenServer := func(issuer TokenIssuer) *echo.Echo {
		srv := NewServer(&stubVerifier{}, services.NewAccessService(new(MockRepository)), issuer, newRecordingPublisher(nil), new(MockRepository), noOpLogger{}, false)
		e := echo.New()
		g := e.Group("/api/v1", asUser(user))
		srv.RegisterAPIRoutes(g)
		return e
	}

	t.Run("Issued", func(t *testing.T) {
		expires := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
		issuer := &stubIssuer{token: &models.ChannelToken{
			Token:     "signed-token",
			Channel:   models.ChannelForWorkflow("wf-1"),
			ExpiresAt: expires,
		}}
		e := newTokenServer(issuer)

		rec := doJSON(e, http.MethodPost, "/api/v1/workflows/wf-1/channel-token", "", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token":"signed-token"`)
		assert.Contains(t, rec.Body.String(), `"channel":"workflow:wf-1"`)
		assert.Contains(t, rec.Body.String(), `"expires_at"`)
	})

	t.Run("Forbidden", func(t *testing.T) {
		e := newTokenServer(&stubIssuer{err: services.ErrForbidden})

		rec := doJSON(e, http.MethodPost, "/api/v1/workflows/wf-1/channel-token", "", "")

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		e := newTokenServer(&stubIssuer{err: errors.New("connection reset")})

		rec := doJSON(e, http.MethodPost, "/api/v1/workflows/wf-1/channel-token", "", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})
}
