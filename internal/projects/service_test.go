package projects

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddq-agent/backend/internal/extraction"
	"github.com/ddq-agent/backend/internal/lifecycle"
	"github.com/ddq-agent/backend/internal/parsing"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
)

const questionnaireText = `Section 1: Financials

1. What was the revenue growth over the last three years?
2. Describe the company's debt structure.

Section 2: Security

Do you maintain an information security policy?
`

type fixture struct {
	db      *sqlite.Client
	service *Service
	dir     string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	db, err := sqlite.NewClient(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	return &fixture{
		db:      db,
		service: NewService(db, lifecycle.NewController(db), extraction.NewExtractor(), parsing.NewQuestionnaireParser()),
		dir:     dir,
	}
}

// addDocument writes content to disk and registers it, returning the
// document ID.
func (f *fixture) addDocument(t *testing.T, name, content string, isQuestionnaire bool) string {
	t.Helper()

	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	id := uuid.New().String()
	require.NoError(t, f.db.InsertDocument(&models.Document{
		ID:              id,
		Name:            name,
		FileType:        "txt",
		FilePath:        path,
		IndexingStatus:  models.IndexingIndexed,
		IsQuestionnaire: isQuestionnaire,
		UploadedAt:      time.Now().UTC(),
	}))
	return id
}

func runJob(t *testing.T, job func(context.Context, func(int)) ([]byte, error)) error {
	t.Helper()
	_, err := job(context.Background(), func(int) {})
	return err
}

func TestCreateBuildsProject(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCreating, project.Status)

	require.NoError(t, runJob(t, job))

	built, err := f.db.GetProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectReady, built.Status)
	assert.Equal(t, 3, built.TotalQuestions)
	assert.Zero(t, built.AnsweredQuestions)

	sections, err := f.service.Sections(project.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Financials", sections[0].Title)
	assert.Len(t, sections[0].Questions, 2)
	assert.Equal(t, "Security", sections[1].Title)
	assert.Len(t, sections[1].Questions, 1)

	// Every question starts with a PENDING answer.
	for _, section := range sections {
		for _, q := range section.Questions {
			answer, err := f.db.GetAnswerByQuestion(q.ID)
			require.NoError(t, err)
			assert.Equal(t, models.AnswerPending, answer.Status)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)
	evidenceID := f.addDocument(t, "report.txt", "revenue grew", false)

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{
			name: "missing name",
			req:  CreateRequest{QuestionnaireID: questionnaireID, DocumentScope: models.ScopeAllDocs},
			want: models.ErrValidation,
		},
		{
			name: "all docs with selection",
			req: CreateRequest{
				Name:                "p",
				QuestionnaireID:     questionnaireID,
				DocumentScope:       models.ScopeAllDocs,
				SelectedDocumentIDs: []string{evidenceID},
			},
			want: models.ErrValidation,
		},
		{
			name: "selected docs without selection",
			req:  CreateRequest{Name: "p", QuestionnaireID: questionnaireID, DocumentScope: models.ScopeSelectedDocs},
			want: models.ErrValidation,
		},
		{
			name: "selected docs with unknown document",
			req: CreateRequest{
				Name:                "p",
				QuestionnaireID:     questionnaireID,
				DocumentScope:       models.ScopeSelectedDocs,
				SelectedDocumentIDs: []string{"missing"},
			},
			want: models.ErrNotFound,
		},
		{
			name: "questionnaire is not a questionnaire",
			req:  CreateRequest{Name: "p", QuestionnaireID: evidenceID, DocumentScope: models.ScopeAllDocs},
			want: models.ErrValidation,
		},
		{
			name: "unknown questionnaire",
			req:  CreateRequest{Name: "p", QuestionnaireID: "missing", DocumentScope: models.ScopeAllDocs},
			want: models.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.service.Create(tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateBuildFailure(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "empty.txt", "Only statements here.\n", true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)

	require.Error(t, runJob(t, job))

	failed, err := f.db.GetProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectError, failed.Status)
	assert.NotEmpty(t, failed.ErrorMessage)
}

func TestRetryRebuildsAfterError(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", "Only statements here.\n", true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	require.Error(t, runJob(t, job))

	// The questionnaire file gets fixed in place.
	doc, err := f.db.GetDocument(questionnaireID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(doc.FilePath, []byte(questionnaireText), 0o644))

	retried, retryJob, err := f.service.Retry(project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCreating, retried.Status)

	require.NoError(t, runJob(t, retryJob))

	rebuilt, err := f.db.GetProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectReady, rebuilt.Status)
	assert.Equal(t, 3, rebuilt.TotalQuestions)

	sections, err := f.service.Sections(project.ID)
	require.NoError(t, err)
	assert.Len(t, sections, 2)
}

func TestRetryRequiresErrorStatus(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	require.NoError(t, runJob(t, job))

	_, _, err = f.service.Retry(project.ID)

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUpdateScopeOutdatesReadyProject(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)
	evidenceID := f.addDocument(t, "report.txt", "revenue grew", false)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	require.NoError(t, runJob(t, job))

	updated, err := f.service.UpdateScope(project.ID, models.ScopeSelectedDocs, []string{evidenceID})

	require.NoError(t, err)
	assert.Equal(t, models.ProjectOutdated, updated.Status)
	assert.Equal(t, models.ScopeSelectedDocs, updated.DocumentScope)
	assert.Equal(t, []string{evidenceID}, updated.SelectedDocumentIDs)
}

func TestUpdateScopeWhileGeneratingConflicts(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	require.NoError(t, runJob(t, job))
	require.NoError(t, f.db.UpdateProjectStatus(project.ID, models.ProjectGenerating, ""))

	_, err = f.service.UpdateScope(project.ID, models.ScopeAllDocs, nil)

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestStatusBreakdown(t *testing.T) {
	f := setup(t)
	questionnaireID := f.addDocument(t, "ddq.txt", questionnaireText, true)

	project, job, err := f.service.Create(CreateRequest{
		Name:            "diligence",
		QuestionnaireID: questionnaireID,
		DocumentScope:   models.ScopeAllDocs,
	})
	require.NoError(t, err)
	require.NoError(t, runJob(t, job))

	status, err := f.service.Status(project.ID)

	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Zero(t, status.Answered)
	assert.Equal(t, 3, status.ByStatus[models.AnswerPending])
}
