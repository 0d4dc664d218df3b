package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefloww/floww-backend/pkg/models"
)

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

type publishCommand struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

// brokerStub records publish commands and serves a scripted sequence of
// status codes, repeating the last one once the script runs out.
type brokerStub struct {
	mu       sync.Mutex
	statuses []int
	calls    int
	commands []publishCommand
	auth     []string
}

func (b *brokerStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		var cmd publishCommand
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		b.commands = append(b.commands, cmd)
		b.auth = append(b.auth, r.Header.Get("Authorization"))

		status := b.statuses[len(b.statuses)-1]
		if b.calls < len(b.statuses) {
			status = b.statuses[b.calls]
		}
		b.calls++

		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"result":{}}`))
		}
	}
}

func (b *brokerStub) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestCentrifugoService_Publish(t *testing.T) {
	broker := &brokerStub{statuses: []int{http.StatusOK}}
	server := httptest.NewServer(broker.handler(t))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	event := &models.WorkflowEvent{
		WorkflowID: "wf-1",
		Kind:       models.EventExecutionStarted,
		Payload:    json.RawMessage(`{"execution_id":"e1"}`),
	}
	require.NoError(t, svc.Publish(context.Background(), event))

	// Missing identity fields were filled in before serialization.
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())

	require.Len(t, broker.commands, 1)
	cmd := broker.commands[0]
	assert.Equal(t, "publish", cmd.Method)
	assert.Equal(t, "workflow:wf-1", cmd.Params.Channel)
	assert.Equal(t, "apikey broker-api-key", broker.auth[0])

	var data models.WorkflowEvent
	require.NoError(t, json.Unmarshal(cmd.Params.Data, &data))
	assert.Equal(t, models.EventExecutionStarted, data.Kind)
	assert.Equal(t, "wf-1", data.WorkflowID)
}

func TestCentrifugoService_RetriesTransientFailures(t *testing.T) {
	broker := &brokerStub{statuses: []int{
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusOK,
	}}
	server := httptest.NewServer(broker.handler(t))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	err := svc.PublishWebhookReceived(context.Background(), "wf-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 3, broker.callCount())
}

func TestCentrifugoService_ExhaustedRetries(t *testing.T) {
	broker := &brokerStub{statuses: []int{http.StatusInternalServerError}}
	server := httptest.NewServer(broker.handler(t))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	err := svc.PublishExecutionFailed(context.Background(), "wf-1", json.RawMessage(`{}`))
	require.Error(t, err)

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, models.ChannelName("workflow:wf-1"), pubErr.Channel)
	assert.Equal(t, maxPublishRetries+1, pubErr.Attempts)
	assert.Equal(t, maxPublishRetries+1, broker.callCount())
}

func TestCentrifugoService_ClientErrorIsPermanent(t *testing.T) {
	broker := &brokerStub{statuses: []int{http.StatusForbidden}}
	server := httptest.NewServer(broker.handler(t))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	err := svc.PublishExecutionCompleted(context.Background(), "wf-1", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, 1, broker.callCount())
}

func TestCentrifugoService_BrokerErrorObjectIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"code":102,"message":"unknown channel"}}`))
	}))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	err := svc.PublishExecutionStarted(context.Background(), "wf-1", json.RawMessage(`{}`))
	require.Error(t, err)

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, 1, pubErr.Attempts)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestCentrifugoService_OrderedPerChannel(t *testing.T) {
	broker := &brokerStub{statuses: []int{http.StatusOK}}
	server := httptest.NewServer(broker.handler(t))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})
	ctx := context.Background()

	kinds := []models.EventKind{
		models.EventExecutionStarted,
		models.EventExecutionCompleted,
		models.EventWebhookReceived,
	}
	for _, kind := range kinds {
		require.NoError(t, svc.Publish(ctx, &models.WorkflowEvent{WorkflowID: "wf-2", Kind: kind}))
	}

	require.Len(t, broker.commands, 3)
	for i, kind := range kinds {
		var data models.WorkflowEvent
		require.NoError(t, json.Unmarshal(broker.commands[i].Params.Data, &data))
		assert.Equal(t, kind, data.Kind)
		assert.Equal(t, "workflow:wf-2", broker.commands[i].Params.Channel)
	}
}

func TestCentrifugoService_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	svc := NewCentrifugoService(server.URL, "broker-api-key", noOpLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.Publish(ctx, &models.WorkflowEvent{WorkflowID: "wf-1", Kind: models.EventExecutionStarted})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
