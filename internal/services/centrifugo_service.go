package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/usefloww/floww-backend/pkg/models"
)

const (
	publishTimeout = 10 * time.Second
	// maxPublishRetries bounds the retry budget per publish; with the
	// initial attempt that is maxPublishRetries+1 tries.
	maxPublishRetries = 4
	streamBuffer      = 64
)

// CentrifugoService publishes workflow events to the Centrifugo HTTP API,
// authenticated with the backend-to-broker API key. Delivery is
// at-least-once; clients must tolerate duplicates.
//
// Ordering: each channel has its own submission stream, so events for one
// workflow reach the broker in the order they were published while different
// workflows' events proceed in parallel. Streams persist for the process
// lifetime.
type CentrifugoService struct {
	client *http.Client
	apiURL string
	apiKey string
	logger Logger

	mu      sync.Mutex
	streams map[models.ChannelName]chan publishJob
}

type publishJob struct {
	ctx     context.Context
	channel models.ChannelName
	data    json.RawMessage
	result  chan error
}

// NewCentrifugoService creates a publisher for the broker at baseURL
// (scheme://host:port).
func NewCentrifugoService(baseURL, apiKey string, logger Logger) *CentrifugoService {
	return &CentrifugoService{
		client:  &http.Client{Timeout: publishTimeout},
		apiURL:  baseURL + "/api",
		apiKey:  apiKey,
		logger:  logger,
		streams: map[models.ChannelName]chan publishJob{},
	}
}

// Publish submits one workflow event to its channel, blocking until the
// broker accepted it or the retry budget ran out. Exhaustion returns a
// *PublishError; callers log it and move on, the triggering workflow state
// change is never reverted.
func (s *CentrifugoService) Publish(ctx context.Context, event *models.WorkflowEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := models.ChannelForWorkflow(event.WorkflowID)
	job := publishJob{ctx: ctx, channel: channel, data: data, result: make(chan error, 1)}

	select {
	case s.stream(channel) <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishWebhookReceived notifies the workflow's channel that a webhook hit
// one of its triggers.
func (s *CentrifugoService) PublishWebhookReceived(ctx context.Context, workflowID string, payload json.RawMessage) error {
	return s.Publish(ctx, &models.WorkflowEvent{WorkflowID: workflowID, Kind: models.EventWebhookReceived, Payload: payload})
}

// PublishExecutionStarted notifies that an execution began.
func (s *CentrifugoService) PublishExecutionStarted(ctx context.Context, workflowID string, payload json.RawMessage) error {
	return s.Publish(ctx, &models.WorkflowEvent{WorkflowID: workflowID, Kind: models.EventExecutionStarted, Payload: payload})
}

// PublishExecutionCompleted notifies that an execution finished successfully.
func (s *CentrifugoService) PublishExecutionCompleted(ctx context.Context, workflowID string, payload json.RawMessage) error {
	return s.Publish(ctx, &models.WorkflowEvent{WorkflowID: workflowID, Kind: models.EventExecutionCompleted, Payload: payload})
}

// PublishExecutionFailed notifies that an execution failed.
func (s *CentrifugoService) PublishExecutionFailed(ctx context.Context, workflowID string, payload json.RawMessage) error {
	return s.Publish(ctx, &models.WorkflowEvent{WorkflowID: workflowID, Kind: models.EventExecutionFailed, Payload: payload})
}

// stream returns the channel's submission queue, starting its worker on
// first use.
func (s *CentrifugoService) stream(channel models.ChannelName) chan publishJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, ok := s.streams[channel]
	if !ok {
		jobs = make(chan publishJob, streamBuffer)
		s.streams[channel] = jobs
		go s.run(jobs)
	}
	return jobs
}

func (s *CentrifugoService) run(jobs chan publishJob) {
	for job := range jobs {
		job.result <- s.send(job.ctx, job.channel, job.data)
	}
}

// send posts one publish command, retrying transient failures with bounded
// exponential backoff.
func (s *CentrifugoService) send(ctx context.Context, channel models.ChannelName, data json.RawMessage) error {
	body, err := json.Marshal(map[string]interface{}{
		"method": "publish",
		"params": map[string]interface{}{
			"channel": channel.String(),
			"data":    data,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal publish command: %w", err)
	}

	attempts := 0
	operation := func() error {
		attempts++
		return s.post(ctx, body)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxPublishRetries), ctx))
	if err != nil {
		s.logger.Error("publish failed", "channel", channel.String(), "attempts", attempts, "error", err)
		return &PublishError{Channel: channel, Attempts: attempts, Err: err}
	}

	s.logger.Debug("published event", "channel", channel.String(), "attempts", attempts)
	return nil
}

// post performs a single publish attempt. Network errors and 5xx responses
// are retryable; anything else is permanent.
func (s *CentrifugoService) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build publish request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("broker returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("broker rejected publish with status %d", resp.StatusCode))
	}

	var result struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&result); err != nil && err != io.EOF {
		return backoff.Permanent(fmt.Errorf("decode publish response: %w", err))
	}
	if result.Error != nil {
		return backoff.Permanent(fmt.Errorf("broker error %d: %s", result.Error.Code, result.Error.Message))
	}
	return nil
}
