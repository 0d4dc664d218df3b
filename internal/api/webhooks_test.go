package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/usefloww/floww-backend/internal/repository"
	"github.com/usefloww/floww-backend/internal/services"
	"github.com/usefloww/floww-backend/pkg/models"
)

func newWebhookServer(repo repository.Repository, publisher WebhookPublisher) *echo.Echo {
	srv := NewServer(&stubVerifier{}, services.NewAccessService(repo), &stubIssuer{}, publisher, repo, noOpLogger{}, false)
	e := echo.New()
	srv.RegisterPublicRoutes(e)
	return e
}

func awaitWebhook(t *testing.T, publisher *recordingPublisher) publishedWebhook {
	t.Helper()
	select {
	case event := <-publisher.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook event published")
		return publishedWebhook{}
	}
}

func TestHandleWebhook_PublishesEvent(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetWorkflow", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1", WorkspaceID: "ws1"}, nil)
	publisher := newRecordingPublisher(nil)
	e := newWebhookServer(repo, publisher)

	rec := doJSON(e, http.MethodPost, "/webhooks/wf-1?source=github", `{"action":"push"}`, "")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"workflow_id":"wf-1"}`, rec.Body.String())

	event := awaitWebhook(t, publisher)
	assert.Equal(t, "wf-1", event.workflowID)

	var payload struct {
		Path   string              `json:"path"`
		Method string              `json:"method"`
		Query  map[string][]string `json:"query"`
		Body   json.RawMessage     `json:"body"`
	}
	require.NoError(t, json.Unmarshal(event.payload, &payload))
	assert.Equal(t, "/webhooks/wf-1", payload.Path)
	assert.Equal(t, http.MethodPost, payload.Method)
	assert.Equal(t, []string{"github"}, payload.Query["source"])
	assert.JSONEq(t, `{"action":"push"}`, string(payload.Body))
}

func TestHandleWebhook_UnknownWorkflow(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetWorkflow", mock.Anything, "wf-missing").
		Return(nil, repository.ErrNotFound)
	publisher := newRecordingPublisher(nil)
	e := newWebhookServer(repo, publisher)

	rec := doJSON(e, http.MethodPost, "/webhooks/wf-missing", `{}`, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, publisher.events)
}

func TestHandleWebhook_NonJSONBodyWrapped(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetWorkflow", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1", WorkspaceID: "ws1"}, nil)
	publisher := newRecordingPublisher(nil)
	e := newWebhookServer(repo, publisher)

	rec := doJSON(e, http.MethodPost, "/webhooks/wf-1", "plain text body", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	event := awaitWebhook(t, publisher)
	var payload struct {
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(event.payload, &payload))
	assert.Equal(t, "plain text body", payload.Body)
}

// A publish failure is the publisher's problem: the webhook caller already
// got its 202.
func TestHandleWebhook_PublishFailureNotSurfaced(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetWorkflow", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1", WorkspaceID: "ws1"}, nil)
	publisher := newRecordingPublisher(&services.PublishError{
		Channel:  models.ChannelForWorkflow("wf-1"),
		Attempts: 5,
	})
	e := newWebhookServer(repo, publisher)

	rec := doJSON(e, http.MethodPost, "/webhooks/wf-1", `{}`, "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	awaitWebhook(t, publisher)
}
