package answering

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/cache/redis"
	"github.com/ddq-agent/backend/internal/lifecycle"
	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
	"github.com/ddq-agent/backend/pkg/utils"
)

// Service drives answer generation and review. Generation writes the
// AI answer exactly once per question; review transitions preserve the
// AI answer alongside any manual replacement.
type Service struct {
	db              *sqlite.Client
	generator       *Generator
	control         *lifecycle.Controller
	cache           *redis.Client
	cacheTTL        time.Duration
	questionTimeout time.Duration

	mu           sync.Mutex
	projectLocks map[string]*sync.Mutex
}

func NewService(db *sqlite.Client, generator *Generator, control *lifecycle.Controller, cache *redis.Client, cacheTTL, questionTimeout time.Duration) *Service {
	if questionTimeout <= 0 {
		questionTimeout = 30 * time.Second
	}
	return &Service{
		db:              db,
		generator:       generator,
		control:         control,
		cache:           cache,
		cacheTTL:        cacheTTL,
		questionTimeout: questionTimeout,
		projectLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.projectLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.projectLocks[projectID] = lock
	}
	return lock
}

// regenerable reports whether generation may write the answer. The
// first GENERATED draft is immutable and later corrections go through
// review, but MISSING_DATA answers retry on every generation run: new
// evidence may have been indexed since.
func regenerable(status models.AnswerStatus) bool {
	return status == models.AnswerPending || status == models.AnswerMissingData
}

// scope returns the document IDs a project may draw evidence from.
// ALL_DOCS resolves to every non-questionnaire document: questionnaires
// hold the questions themselves, not evidence.
func (s *Service) scope(project *models.Project) ([]string, error) {
	if project.DocumentScope == models.ScopeSelectedDocs {
		return project.SelectedDocumentIDs, nil
	}

	isQuestionnaire := false
	docs, err := s.db.ListDocuments(&isQuestionnaire)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// namer resolves document names for citation references, memoizing
// lookups within one generation pass.
func (s *Service) namer() DocumentNamer {
	names := make(map[string]string)
	return func(documentID string) string {
		if name, ok := names[documentID]; ok {
			return name
		}
		name := ""
		if doc, err := s.db.GetDocument(documentID); err == nil {
			name = doc.Name
		}
		names[documentID] = name
		return name
	}
}

// GenerateAnswer produces the AI answer for one question. A question
// that already holds a generated or reviewed answer is returned
// unchanged; a MISSING_DATA answer is attempted again.
func (s *Service) GenerateAnswer(ctx context.Context, questionID string) (*models.Answer, error) {
	question, err := s.db.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}

	answer, err := s.db.GetAnswerByQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if !regenerable(answer.Status) {
		return answer, nil
	}

	project, err := s.db.GetProject(question.ProjectID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.questionTimeout)
	defer cancel()

	draft, err := s.draft(ctx, project, question)
	if err != nil {
		return nil, err
	}

	answer.IsAnswerable = draft.IsAnswerable
	if draft.IsAnswerable {
		answer.Status = models.AnswerGenerated
		answer.AIAnswer = &draft.Text
		answer.Citations = draft.Citations
		confidence := draft.Confidence
		answer.ConfidenceScore = &confidence
		metrics.ConfidenceScore.Observe(draft.Confidence)
	} else {
		answer.Status = models.AnswerMissingData
		answer.AIAnswer = nil
		answer.Citations = []models.Citation{}
		answer.ConfidenceScore = nil
	}
	answer.UpdatedAt = time.Now().UTC()

	if err := s.db.UpdateAnswer(answer); err != nil {
		return nil, err
	}

	metrics.AnswersGenerated.WithLabelValues(string(answer.Status)).Inc()

	if err := s.refreshCounts(project.ID); err != nil {
		logger.Warn("Failed to refresh project counts",
			zap.String("project_id", project.ID),
			zap.Error(err),
		)
	}

	return answer, nil
}

func (s *Service) draft(ctx context.Context, project *models.Project, question *models.Question) (*Draft, error) {
	scopeIDs, err := s.scope(project)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = utils.HashString(fmt.Sprintf("%s|%s|%d",
			question.Text, strings.Join(scopeIDs, ","), s.control.CorpusEpoch()))

		var cached Draft
		hit, err := s.cache.GetDraft(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("Draft cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("draft").Inc()
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("draft").Inc()
	}

	start := time.Now()
	draft, err := s.generator.Draft(ctx, question.Text, scopeIDs, s.namer())
	if err != nil {
		return nil, err
	}
	metrics.GenerationDuration.WithLabelValues(s.generator.composer.Name()).Observe(time.Since(start).Seconds())
	metrics.RetrievalResultsCount.WithLabelValues(string(models.TierRetrieval)).Observe(float64(len(draft.Selected)))

	if s.cache != nil {
		if err := s.cache.SetDraft(ctx, cacheKey, draft, s.cacheTTL); err != nil {
			logger.Warn("Draft cache store failed", zap.Error(err))
		}
	}

	return draft, nil
}

// BatchResult summarizes one project-wide generation run.
type BatchResult struct {
	ProjectID string `json:"project_id"`
	Generated int    `json:"generated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// GenerateProjectJob returns the background job that answers every
// open question of the project. Runs for the same project serialize on
// a per-project lock; each question gets its own timeout, and one
// question failing does not abort the rest.
func (s *Service) GenerateProjectJob(projectID string) workers.Job {
	return func(ctx context.Context, report func(progress int)) ([]byte, error) {
		lock := s.projectLock(projectID)
		lock.Lock()
		defer lock.Unlock()

		epoch, err := s.control.BeginGeneration(projectID)
		if err != nil {
			return nil, err
		}

		result, err := s.generateAll(ctx, projectID, report)
		if err != nil {
			if failErr := s.control.FailGeneration(projectID, err.Error()); failErr != nil {
				logger.Error("Failed to record generation failure",
					zap.String("project_id", projectID),
					zap.Error(failErr),
				)
			}
			return nil, err
		}

		if err := s.control.FinishGeneration(projectID, epoch); err != nil {
			return nil, err
		}

		return json.Marshal(result)
	}
}

func (s *Service) generateAll(ctx context.Context, projectID string, report func(progress int)) (*BatchResult, error) {
	questions, err := s.db.ListQuestions(projectID, "")
	if err != nil {
		return nil, err
	}

	result := &BatchResult{ProjectID: projectID}

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		answer, err := s.db.GetAnswerByQuestion(q.ID)
		if err != nil {
			return nil, err
		}
		if !regenerable(answer.Status) {
			result.Skipped++
		} else if _, err := s.GenerateAnswer(ctx, q.ID); err != nil {
			logger.Warn("Question generation failed",
				zap.String("question_id", q.ID),
				zap.Error(err),
			)
			result.Failed++
		} else {
			result.Generated++
		}

		if len(questions) > 0 {
			report(10 + 90*(i+1)/len(questions))
		}
	}

	logger.Info("Project generation finished",
		zap.String("project_id", projectID),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// ReviewRequest carries a review transition for one answer.
type ReviewRequest struct {
	Status       models.AnswerStatus
	ManualAnswer *string
	ReviewNotes  string
}

// Review applies a reviewer decision. The AI answer is never modified;
// a MANUAL_UPDATED transition stores the replacement text alongside it.
func (s *Service) Review(answerID string, req ReviewRequest) (*models.Answer, error) {
	answer, err := s.db.GetAnswer(answerID)
	if err != nil {
		return nil, err
	}

	if err := s.control.ValidateReview(answer.Status, req.Status); err != nil {
		return nil, err
	}

	if req.Status == models.AnswerManualUpdated {
		if req.ManualAnswer == nil || strings.TrimSpace(*req.ManualAnswer) == "" {
			return nil, fmt.Errorf("%w: manual answer text is required", models.ErrValidation)
		}
		answer.ManualAnswer = req.ManualAnswer
	}

	answer.Status = req.Status
	if req.ReviewNotes != "" {
		answer.ReviewNotes = req.ReviewNotes
	}
	answer.UpdatedAt = time.Now().UTC()

	if err := s.db.UpdateAnswer(answer); err != nil {
		return nil, err
	}

	logger.Info("Answer reviewed",
		zap.String("answer_id", answerID),
		zap.String("status", string(req.Status)),
	)

	return answer, nil
}

// GetByQuestion returns the answer record for a question.
func (s *Service) GetByQuestion(questionID string) (*models.Answer, error) {
	return s.db.GetAnswerByQuestion(questionID)
}

// ListByProject returns all answers of a project.
func (s *Service) ListByProject(projectID string) ([]models.Answer, error) {
	return s.db.ListProjectAnswers(projectID)
}

func (s *Service) refreshCounts(projectID string) error {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return err
	}

	answered, err := s.db.CountAnsweredQuestions(projectID)
	if err != nil {
		return err
	}

	return s.db.UpdateProjectCounts(projectID, project.TotalQuestions, answered)
}
