package lifecycle

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Controller owns the document, project and answer state machines and
// the corpus epoch. The epoch increments on every successful indexing
// commit; a generation run records the epoch it started under and, for
// ALL_DOCS projects, lands in OUTDATED instead of READY when the corpus
// grew underneath it.
type Controller struct {
	db *sqlite.Client

	mu    sync.Mutex
	epoch int64
}

func NewController(db *sqlite.Client) *Controller {
	return &Controller{db: db}
}

// CorpusEpoch returns the current epoch.
func (c *Controller) CorpusEpoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Controller) bumpEpoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	return c.epoch
}

var documentTransitions = map[models.IndexingStatus][]models.IndexingStatus{
	models.IndexingPending: {models.IndexingRunning},
	models.IndexingRunning: {models.IndexingIndexed, models.IndexingFailed},
	models.IndexingIndexed: {models.IndexingRunning},
	models.IndexingFailed:  {models.IndexingRunning},
}

// TransitionDocument moves a document to the target indexing status.
// Re-applying the current status is a no-op; an illegal transition
// returns ErrConflict.
func (c *Controller) TransitionDocument(documentID string, to models.IndexingStatus, errorMessage string) error {
	doc, err := c.db.GetDocument(documentID)
	if err != nil {
		return err
	}

	if doc.IndexingStatus == to {
		return nil
	}
	if !slices.Contains(documentTransitions[doc.IndexingStatus], to) {
		return fmt.Errorf("%w: document %s cannot move %s -> %s",
			models.ErrConflict, documentID, doc.IndexingStatus, to)
	}

	var indexedAt *time.Time
	if to == models.IndexingIndexed {
		now := time.Now().UTC()
		indexedAt = &now
	}

	if err := c.db.UpdateDocumentStatus(documentID, to, errorMessage, indexedAt); err != nil {
		return err
	}

	logger.Info("Document status changed",
		zap.String("doc_id", documentID),
		zap.String("from", string(doc.IndexingStatus)),
		zap.String("to", string(to)),
	)

	return nil
}

// CommitIndexed marks the document INDEXED, bumps the corpus epoch and
// sweeps ALL_DOCS projects that were READY into OUTDATED. The status
// write and the sweep share one database transaction: no reader can
// see the document INDEXED next to a READY ALL_DOCS project that
// predates it.
func (c *Controller) CommitIndexed(documentID string) error {
	doc, err := c.db.GetDocument(documentID)
	if err != nil {
		return err
	}
	if doc.IndexingStatus != models.IndexingIndexed &&
		!slices.Contains(documentTransitions[doc.IndexingStatus], models.IndexingIndexed) {
		return fmt.Errorf("%w: document %s cannot move %s -> %s",
			models.ErrConflict, documentID, doc.IndexingStatus, models.IndexingIndexed)
	}

	// The epoch moves before the commit lands: a generation run that
	// races the commit sees at worst a bumped epoch for an unchanged
	// corpus, never the reverse.
	epoch := c.bumpEpoch()

	swept, err := c.db.CommitDocumentIndexed(documentID, time.Now().UTC())
	if err != nil {
		return err
	}

	metrics.ProjectsOutdated.Add(float64(len(swept)))

	if len(swept) > 0 {
		logger.Info("Projects marked outdated after corpus change",
			zap.String("doc_id", documentID),
			zap.Int("projects", len(swept)),
			zap.Int64("epoch", epoch),
		)
	}

	return nil
}

var projectTransitions = map[models.ProjectStatus][]models.ProjectStatus{
	models.ProjectCreating:   {models.ProjectReady, models.ProjectError},
	models.ProjectReady:      {models.ProjectGenerating, models.ProjectOutdated},
	models.ProjectGenerating: {models.ProjectReady, models.ProjectOutdated, models.ProjectError},
	models.ProjectOutdated:   {models.ProjectGenerating},
	models.ProjectError:      {models.ProjectCreating},
}

// TransitionProject moves a project to the target status. Re-applying
// the current status is a no-op; an illegal transition returns
// ErrConflict.
func (c *Controller) TransitionProject(projectID string, to models.ProjectStatus, errorMessage string) error {
	project, err := c.db.GetProject(projectID)
	if err != nil {
		return err
	}

	if project.Status == to {
		return nil
	}
	if !slices.Contains(projectTransitions[project.Status], to) {
		return fmt.Errorf("%w: project %s cannot move %s -> %s",
			models.ErrConflict, projectID, project.Status, to)
	}

	if err := c.db.UpdateProjectStatus(projectID, to, errorMessage); err != nil {
		return err
	}

	logger.Info("Project status changed",
		zap.String("project_id", projectID),
		zap.String("from", string(project.Status)),
		zap.String("to", string(to)),
	)

	return nil
}

// BeginGeneration moves the project into GENERATING and returns the
// corpus epoch the run started under.
func (c *Controller) BeginGeneration(projectID string) (int64, error) {
	if err := c.TransitionProject(projectID, models.ProjectGenerating, ""); err != nil {
		return 0, err
	}
	return c.CorpusEpoch(), nil
}

// FinishGeneration lands a GENERATING project in READY, or in OUTDATED
// when the project follows the whole corpus and the corpus changed
// since the run began.
func (c *Controller) FinishGeneration(projectID string, startEpoch int64) error {
	project, err := c.db.GetProject(projectID)
	if err != nil {
		return err
	}

	target := models.ProjectReady
	if project.DocumentScope == models.ScopeAllDocs && c.CorpusEpoch() != startEpoch {
		target = models.ProjectOutdated
	}

	return c.TransitionProject(projectID, target, "")
}

// FailGeneration records a failed run.
func (c *Controller) FailGeneration(projectID string, errorMessage string) error {
	return c.TransitionProject(projectID, models.ProjectError, errorMessage)
}

var answerReviewTransitions = map[models.AnswerStatus][]models.AnswerStatus{
	models.AnswerGenerated:     {models.AnswerConfirmed, models.AnswerRejected, models.AnswerManualUpdated},
	models.AnswerMissingData:   {models.AnswerConfirmed, models.AnswerRejected, models.AnswerManualUpdated},
	models.AnswerConfirmed:     {models.AnswerManualUpdated},
	models.AnswerRejected:      {models.AnswerManualUpdated},
	models.AnswerManualUpdated: {models.AnswerConfirmed},
}

// ValidateReview checks that an answer in its current status accepts
// the requested review status. Re-applying the current status is
// allowed.
func (c *Controller) ValidateReview(current, to models.AnswerStatus) error {
	if current == to {
		return nil
	}
	if slices.Contains(answerReviewTransitions[current], to) {
		return nil
	}
	return fmt.Errorf("%w: answer cannot move %s -> %s", models.ErrConflict, current, to)
}
