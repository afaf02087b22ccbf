package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Job is the unit of background work. It reports progress in [0,100]
// through the callback and returns an optional JSON result payload.
type Job func(ctx context.Context, report func(progress int)) ([]byte, error)

// Tracker runs jobs in background goroutines and persists their
// lifecycle as async request records. Subscribers receive a snapshot on
// every persisted update, which feeds the websocket progress stream.
type Tracker struct {
	db *sqlite.Client

	mu   sync.Mutex
	subs map[string][]chan models.AsyncRequest
}

func NewTracker(db *sqlite.Client) *Tracker {
	return &Tracker{
		db:   db,
		subs: make(map[string][]chan models.AsyncRequest),
	}
}

// Start registers a PENDING request record and launches the job. The
// returned record carries the ID clients poll or subscribe with.
func (t *Tracker) Start(requestType string, job Job) (*models.AsyncRequest, error) {
	now := time.Now().UTC()
	req := &models.AsyncRequest{
		ID:          uuid.New().String(),
		RequestType: requestType,
		Status:      models.RequestPending,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.db.InsertRequest(req); err != nil {
		return nil, fmt.Errorf("failed to register request: %w", err)
	}

	go t.run(*req, job)

	return req, nil
}

func (t *Tracker) run(req models.AsyncRequest, job Job) {
	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				zap.String("request_id", req.ID),
				zap.String("request_type", req.RequestType),
				zap.Any("panic", r),
			)
			t.fail(req, fmt.Sprintf("internal error: %v", r))
		}
	}()

	req.Status = models.RequestInProgress
	req.Progress = 10
	t.persist(&req)

	result, err := job(context.Background(), func(progress int) {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		req.Progress = progress
		t.persist(&req)
	})

	if err != nil {
		t.fail(req, err.Error())
		return
	}

	now := time.Now().UTC()
	req.Status = models.RequestCompleted
	req.Progress = 100
	req.Result = result
	req.CompletedAt = &now
	t.persist(&req)

	logger.Info("Job completed",
		zap.String("request_id", req.ID),
		zap.String("request_type", req.RequestType),
	)
}

func (t *Tracker) fail(req models.AsyncRequest, errorMessage string) {
	now := time.Now().UTC()
	req.Status = models.RequestFailed
	req.ErrorMessage = errorMessage
	req.CompletedAt = &now
	t.persist(&req)

	logger.Error("Job failed",
		zap.String("request_id", req.ID),
		zap.String("request_type", req.RequestType),
		zap.String("error", errorMessage),
	)
}

func (t *Tracker) persist(req *models.AsyncRequest) {
	req.UpdatedAt = time.Now().UTC()

	if err := t.db.UpdateRequest(req); err != nil {
		logger.Error("Failed to persist request update",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}

	t.notify(*req)
}

// Get returns the current request snapshot.
func (t *Tracker) Get(requestID string) (*models.AsyncRequest, error) {
	return t.db.GetRequest(requestID)
}

// Subscribe streams request snapshots until cancel is called or the
// request reaches a terminal state. Slow subscribers drop intermediate
// snapshots rather than stalling the job.
func (t *Tracker) Subscribe(requestID string) (<-chan models.AsyncRequest, func()) {
	ch := make(chan models.AsyncRequest, 16)

	t.mu.Lock()
	t.subs[requestID] = append(t.subs[requestID], ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		channels := t.subs[requestID]
		for i, c := range channels {
			if c == ch {
				t.subs[requestID] = append(channels[:i], channels[i+1:]...)
				close(ch)
				break
			}
		}
		if len(t.subs[requestID]) == 0 {
			delete(t.subs, requestID)
		}
	}

	return ch, cancel
}

func (t *Tracker) notify(req models.AsyncRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.subs[req.ID] {
		select {
		case ch <- req:
		default:
		}
	}
}
