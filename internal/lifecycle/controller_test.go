package lifecycle

import (
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

func insertDocument(t *testing.T, db *sqlite.Client, id string, status models.IndexingStatus) {
	t.Helper()
	require.NoError(t, db.InsertDocument(&models.Document{
		ID:             id,
		Name:           id + ".txt",
		FileType:       "txt",
		FilePath:       "/tmp/" + id + ".txt",
		IndexingStatus: status,
		UploadedAt:     time.Now().UTC(),
	}))
}

func insertProject(t *testing.T, db *sqlite.Client, id string, scope models.DocumentScope, status models.ProjectStatus) {
	t.Helper()
	insertDocument(t, db, "questionnaire-"+id, models.IndexingPending)
	now := time.Now().UTC()
	require.NoError(t, db.InsertProject(&models.Project{
		ID:              id,
		Name:            id,
		QuestionnaireID: "questionnaire-" + id,
		DocumentScope:   scope,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

func TestTransitionDocument(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingPending)

	require.NoError(t, c.TransitionDocument("d1", models.IndexingRunning, ""))

	doc, err := db.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, models.IndexingRunning, doc.IndexingStatus)
}

func TestTransitionDocumentIdempotent(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingPending)

	assert.NoError(t, c.TransitionDocument("d1", models.IndexingPending, ""))
}

func TestTransitionDocumentIllegal(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingPending)

	err := c.TransitionDocument("d1", models.IndexingIndexed, "")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestReindexFromTerminalStates(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "done", models.IndexingIndexed)
	insertDocument(t, db, "broken", models.IndexingFailed)

	assert.NoError(t, c.TransitionDocument("done", models.IndexingRunning, ""))
	assert.NoError(t, c.TransitionDocument("broken", models.IndexingRunning, ""))
}

func TestCommitIndexedSetsTimestampAndEpoch(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingRunning)

	before := c.CorpusEpoch()
	require.NoError(t, c.CommitIndexed("d1"))

	doc, err := db.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, models.IndexingIndexed, doc.IndexingStatus)
	assert.NotNil(t, doc.IndexedAt)
	assert.Equal(t, before+1, c.CorpusEpoch())
}

func TestCommitIndexedSweepsAllDocsProjects(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingRunning)
	insertProject(t, db, "p-all-ready", models.ScopeAllDocs, models.ProjectReady)
	insertProject(t, db, "p-all-creating", models.ScopeAllDocs, models.ProjectCreating)
	insertProject(t, db, "p-selected-ready", models.ScopeSelectedDocs, models.ProjectReady)

	require.NoError(t, c.CommitIndexed("d1"))

	swept, err := db.GetProject("p-all-ready")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectOutdated, swept.Status)

	creating, err := db.GetProject("p-all-creating")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCreating, creating.Status)

	selected, err := db.GetProject("p-selected-ready")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectReady, selected.Status)
}

func TestCommitIndexedConflictsFromPending(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingPending)

	err := c.CommitIndexed("d1")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestGenerationLandsReadyWhenCorpusUnchanged(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectReady)

	epoch, err := c.BeginGeneration("p1")
	require.NoError(t, err)

	require.NoError(t, c.FinishGeneration("p1", epoch))

	p, err := db.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectReady, p.Status)
}

func TestGenerationLandsOutdatedWhenCorpusGrew(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingRunning)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectReady)

	epoch, err := c.BeginGeneration("p1")
	require.NoError(t, err)

	// A document commits while the run is in flight.
	require.NoError(t, c.CommitIndexed("d1"))

	require.NoError(t, c.FinishGeneration("p1", epoch))

	p, err := db.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectOutdated, p.Status)
}

func TestGenerationSelectedScopeIgnoresCorpusGrowth(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertDocument(t, db, "d1", models.IndexingRunning)
	insertProject(t, db, "p1", models.ScopeSelectedDocs, models.ProjectReady)

	epoch, err := c.BeginGeneration("p1")
	require.NoError(t, err)
	require.NoError(t, c.CommitIndexed("d1"))
	require.NoError(t, c.FinishGeneration("p1", epoch))

	p, err := db.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectReady, p.Status)
}

func TestRegenerateFromOutdated(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectOutdated)

	_, err := c.BeginGeneration("p1")

	assert.NoError(t, err)
}

func TestRetryFromError(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectError)

	require.NoError(t, c.TransitionProject("p1", models.ProjectCreating, ""))

	p, err := db.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCreating, p.Status)
}

func TestBeginGenerationConflicts(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectCreating)

	_, err := c.BeginGeneration("p1")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestFailGeneration(t *testing.T) {
	db := setupDB(t)
	c := NewController(db)
	insertProject(t, db, "p1", models.ScopeAllDocs, models.ProjectGenerating)

	require.NoError(t, c.FailGeneration("p1", "questionnaire unreadable"))

	p, err := db.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectError, p.Status)
	assert.Equal(t, "questionnaire unreadable", p.ErrorMessage)
}

func TestValidateReview(t *testing.T) {
	c := NewController(nil)

	assert.NoError(t, c.ValidateReview(models.AnswerGenerated, models.AnswerConfirmed))
	assert.NoError(t, c.ValidateReview(models.AnswerMissingData, models.AnswerManualUpdated))
	assert.NoError(t, c.ValidateReview(models.AnswerConfirmed, models.AnswerConfirmed))
	assert.NoError(t, c.ValidateReview(models.AnswerRejected, models.AnswerManualUpdated))
	assert.NoError(t, c.ValidateReview(models.AnswerManualUpdated, models.AnswerConfirmed))

	assert.ErrorIs(t, c.ValidateReview(models.AnswerPending, models.AnswerConfirmed), models.ErrConflict)
	assert.ErrorIs(t, c.ValidateReview(models.AnswerGenerated, models.AnswerPending), models.ErrConflict)
	assert.ErrorIs(t, c.ValidateReview(models.AnswerConfirmed, models.AnswerRejected), models.ErrConflict)
	assert.ErrorIs(t, c.ValidateReview(models.AnswerRejected, models.AnswerConfirmed), models.ErrConflict)
	assert.ErrorIs(t, c.ValidateReview(models.AnswerManualUpdated, models.AnswerRejected), models.ErrConflict)
}
