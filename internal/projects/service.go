package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/extraction"
	"github.com/ddq-agent/backend/internal/lifecycle"
	"github.com/ddq-agent/backend/internal/parsing"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Service manages questionnaire projects: creation parses the
// questionnaire document into sections and questions and seeds one
// PENDING answer per question.
type Service struct {
	db        *sqlite.Client
	control   *lifecycle.Controller
	extractor *extraction.Extractor
	parser    *parsing.QuestionnaireParser
}

func NewService(db *sqlite.Client, control *lifecycle.Controller, extractor *extraction.Extractor, parser *parsing.QuestionnaireParser) *Service {
	return &Service{
		db:        db,
		control:   control,
		extractor: extractor,
		parser:    parser,
	}
}

// CreateRequest describes a new project.
type CreateRequest struct {
	Name                string
	QuestionnaireID     string
	DocumentScope       models.DocumentScope
	SelectedDocumentIDs []string
}

func (s *Service) validate(req CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: project name is required", models.ErrValidation)
	}

	switch req.DocumentScope {
	case models.ScopeAllDocs:
		if len(req.SelectedDocumentIDs) > 0 {
			return fmt.Errorf("%w: ALL_DOCS scope does not take a document selection", models.ErrValidation)
		}
	case models.ScopeSelectedDocs:
		if len(req.SelectedDocumentIDs) == 0 {
			return fmt.Errorf("%w: SELECTED_DOCS scope requires at least one document", models.ErrValidation)
		}
		for _, id := range req.SelectedDocumentIDs {
			if _, err := s.db.GetDocument(id); err != nil {
				return fmt.Errorf("selected document %s: %w", id, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown document scope %q", models.ErrValidation, req.DocumentScope)
	}

	questionnaire, err := s.db.GetDocument(req.QuestionnaireID)
	if err != nil {
		return fmt.Errorf("questionnaire document: %w", err)
	}
	if !questionnaire.IsQuestionnaire {
		return fmt.Errorf("%w: document %s is not a questionnaire", models.ErrValidation, req.QuestionnaireID)
	}

	return nil
}

// Create registers the project in CREATING and returns it together
// with the background job that parses the questionnaire and moves the
// project to READY or ERROR.
func (s *Service) Create(req CreateRequest) (*models.Project, workers.Job, error) {
	if err := s.validate(req); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		QuestionnaireID:     req.QuestionnaireID,
		DocumentScope:       req.DocumentScope,
		SelectedDocumentIDs: req.SelectedDocumentIDs,
		Status:              models.ProjectCreating,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.db.InsertProject(project); err != nil {
		return nil, nil, err
	}

	job := func(ctx context.Context, report func(progress int)) ([]byte, error) {
		if err := s.build(project.ID, report); err != nil {
			if failErr := s.control.TransitionProject(project.ID, models.ProjectError, err.Error()); failErr != nil {
				logger.Error("Failed to record project error",
					zap.String("project_id", project.ID),
					zap.Error(failErr),
				)
			}
			return nil, err
		}
		return json.Marshal(map[string]string{"project_id": project.ID, "status": string(models.ProjectReady)})
	}

	return project, job, nil
}

// Retry re-runs the build of a project that landed in ERROR. Rows left
// behind by the failed attempt are cleared first so ordering stays
// dense.
func (s *Service) Retry(projectID string) (*models.Project, workers.Job, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	if project.Status != models.ProjectError {
		return nil, nil, fmt.Errorf("%w: project %s is %s, only ERROR projects can be retried",
			models.ErrConflict, projectID, project.Status)
	}

	if err := s.control.TransitionProject(projectID, models.ProjectCreating, ""); err != nil {
		return nil, nil, err
	}
	if err := s.db.ClearProjectContent(projectID); err != nil {
		return nil, nil, err
	}

	job := func(ctx context.Context, report func(progress int)) ([]byte, error) {
		if err := s.build(projectID, report); err != nil {
			if failErr := s.control.TransitionProject(projectID, models.ProjectError, err.Error()); failErr != nil {
				logger.Error("Failed to record project error",
					zap.String("project_id", projectID),
					zap.Error(failErr),
				)
			}
			return nil, err
		}
		return json.Marshal(map[string]string{"project_id": projectID, "status": string(models.ProjectReady)})
	}

	project, err = s.db.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	return project, job, nil
}

// build parses the questionnaire and materializes sections, questions
// and PENDING answers.
func (s *Service) build(projectID string, report func(progress int)) error {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return err
	}

	questionnaire, err := s.db.GetDocument(project.QuestionnaireID)
	if err != nil {
		return err
	}

	pages, err := s.extractor.Extract(questionnaire.FilePath)
	if err != nil {
		return err
	}

	var text strings.Builder
	for _, page := range pages {
		text.WriteString(page.Text)
		text.WriteString("\n")
	}
	report(30)

	parsed, err := s.parser.Parse(text.String())
	if err != nil {
		return err
	}
	report(50)

	now := time.Now().UTC()
	total := 0
	for si, ps := range parsed {
		section := &models.Section{
			ID:        uuid.New().String(),
			ProjectID: projectID,
			Title:     ps.Title,
			Order:     si + 1,
		}
		if err := s.db.InsertSection(section); err != nil {
			return err
		}

		for qi, qText := range ps.Questions {
			question := &models.Question{
				ID:        uuid.New().String(),
				ProjectID: projectID,
				SectionID: section.ID,
				Text:      qText,
				Order:     qi + 1,
			}
			if err := s.db.InsertQuestion(question); err != nil {
				return err
			}

			answer := &models.Answer{
				ID:         uuid.New().String(),
				QuestionID: question.ID,
				ProjectID:  projectID,
				Status:     models.AnswerPending,
				Citations:  []models.Citation{},
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.db.InsertAnswer(answer); err != nil {
				return err
			}
			total++
		}
	}
	report(90)

	if err := s.db.UpdateProjectCounts(projectID, total, 0); err != nil {
		return err
	}

	if err := s.control.TransitionProject(projectID, models.ProjectReady, ""); err != nil {
		return err
	}

	logger.Info("Project built",
		zap.String("project_id", projectID),
		zap.Int("sections", len(parsed)),
		zap.Int("questions", total),
	)

	return nil
}

func (s *Service) Get(projectID string) (*models.Project, error) {
	return s.db.GetProject(projectID)
}

func (s *Service) List() ([]models.Project, error) {
	return s.db.ListProjects()
}

func (s *Service) Delete(projectID string) error {
	return s.db.DeleteProject(projectID)
}

// Sections returns the project outline with questions attached.
func (s *Service) Sections(projectID string) ([]models.Section, error) {
	if _, err := s.db.GetProject(projectID); err != nil {
		return nil, err
	}

	sections, err := s.db.ListSections(projectID)
	if err != nil {
		return nil, err
	}

	for i := range sections {
		questions, err := s.db.ListQuestions(projectID, sections[i].ID)
		if err != nil {
			return nil, err
		}
		sections[i].Questions = questions
	}

	return sections, nil
}

// StatusBreakdown is the project progress summary.
type StatusBreakdown struct {
	Project  *models.Project             `json:"project"`
	ByStatus map[models.AnswerStatus]int `json:"by_status"`
	Total    int                         `json:"total"`
	Answered int                         `json:"answered"`
}

// Status reports per-status answer counts for the project.
func (s *Service) Status(projectID string) (*StatusBreakdown, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	answers, err := s.db.ListProjectAnswers(projectID)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[models.AnswerStatus]int)
	answered := 0
	for _, a := range answers {
		byStatus[a.Status]++
		if a.Status != models.AnswerPending {
			answered++
		}
	}

	return &StatusBreakdown{
		Project:  project,
		ByStatus: byStatus,
		Total:    len(answers),
		Answered: answered,
	}, nil
}

// UpdateScope changes the evidence scope. A READY project whose scope
// changes becomes OUTDATED: its existing answers predate the new
// configuration.
func (s *Service) UpdateScope(projectID string, scope models.DocumentScope, selectedIDs []string) (*models.Project, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	if project.Status == models.ProjectGenerating {
		return nil, fmt.Errorf("%w: project is generating", models.ErrConflict)
	}

	req := CreateRequest{
		Name:                project.Name,
		QuestionnaireID:     project.QuestionnaireID,
		DocumentScope:       scope,
		SelectedDocumentIDs: selectedIDs,
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if err := s.db.UpdateProjectScope(projectID, scope, selectedIDs); err != nil {
		return nil, err
	}

	if project.Status == models.ProjectReady {
		if err := s.control.TransitionProject(projectID, models.ProjectOutdated, ""); err != nil {
			return nil, err
		}
	}

	return s.db.GetProject(projectID)
}
