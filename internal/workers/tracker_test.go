package workers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
)

func setupDB(t *testing.T) *sqlite.Client {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InitSchema())
	return db
}

func waitTerminal(t *testing.T, tracker *Tracker, requestID string) *models.AsyncRequest {
	t.Helper()

	var last *models.AsyncRequest
	require.Eventually(t, func() bool {
		req, err := tracker.Get(requestID)
		if err != nil {
			return false
		}
		last = req
		return req.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return last
}

func TestJobCompletes(t *testing.T) {
	tracker := NewTracker(setupDB(t))

	req, err := tracker.Start("test_job", func(ctx context.Context, report func(int)) ([]byte, error) {
		report(50)
		return []byte(`{"ok":true}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	final := waitTerminal(t, tracker, req.ID)

	assert.Equal(t, models.RequestCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.JSONEq(t, `{"ok":true}`, string(final.Result))
	assert.NotNil(t, final.CompletedAt)
}

func TestJobFails(t *testing.T) {
	tracker := NewTracker(setupDB(t))

	req, err := tracker.Start("test_job", func(ctx context.Context, report func(int)) ([]byte, error) {
		return nil, errors.New("document unreadable")
	})
	require.NoError(t, err)

	final := waitTerminal(t, tracker, req.ID)

	assert.Equal(t, models.RequestFailed, final.Status)
	assert.Equal(t, "document unreadable", final.ErrorMessage)
	assert.NotNil(t, final.CompletedAt)
}

func TestJobPanicIsRecovered(t *testing.T) {
	tracker := NewTracker(setupDB(t))

	req, err := tracker.Start("test_job", func(ctx context.Context, report func(int)) ([]byte, error) {
		panic("boom")
	})
	require.NoError(t, err)

	final := waitTerminal(t, tracker, req.ID)

	assert.Equal(t, models.RequestFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "boom")
}

func TestProgressIsClamped(t *testing.T) {
	tracker := NewTracker(setupDB(t))

	reported := make(chan struct{})
	release := make(chan struct{})

	req, err := tracker.Start("test_job", func(ctx context.Context, report func(int)) ([]byte, error) {
		report(250)
		close(reported)
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	<-reported
	snapshot, err := tracker.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestInProgress, snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress)

	close(release)
	waitTerminal(t, tracker, req.ID)
}

func TestSubscribeReceivesTerminalSnapshot(t *testing.T) {
	tracker := NewTracker(setupDB(t))

	release := make(chan struct{})
	req, err := tracker.Start("test_job", func(ctx context.Context, report func(int)) ([]byte, error) {
		<-release
		return []byte(`{}`), nil
	})
	require.NoError(t, err)

	updates, cancel := tracker.Subscribe(req.ID)
	defer cancel()

	close(release)

	require.Eventually(t, func() bool {
		select {
		case update := <-updates:
			return update.Terminal()
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
