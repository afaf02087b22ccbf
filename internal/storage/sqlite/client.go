package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		indexing_status TEXT NOT NULL,
		is_questionnaire INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		uploaded_at INTEGER NOT NULL,
		indexed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(indexing_status);
	CREATE INDEX IF NOT EXISTS idx_documents_questionnaire ON documents(is_questionnaire);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		tier TEXT NOT NULL,
		text TEXT NOT NULL,
		page_number INTEGER,
		pos INTEGER,
		seq INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_tier ON document_chunks(tier);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		questionnaire_id TEXT NOT NULL,
		document_scope TEXT NOT NULL,
		selected_document_ids TEXT,
		status TEXT NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0,
		answered_questions INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (questionnaire_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_projects_scope_status ON projects(document_scope, status);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		ord INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sections_project ON sections(project_id);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ord INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		FOREIGN KEY (section_id) REFERENCES sections(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_questions_project ON questions(project_id);
	CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		status TEXT NOT NULL,
		is_answerable INTEGER NOT NULL DEFAULT 0,
		ai_answer TEXT,
		manual_answer TEXT,
		citations TEXT NOT NULL DEFAULT '[]',
		confidence_score REAL,
		review_notes TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_answers_project ON answers(project_id);
	CREATE INDEX IF NOT EXISTS idx_answers_status ON answers(status);

	CREATE TABLE IF NOT EXISTS async_requests (
		id TEXT PRIMARY KEY,
		request_type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON async_requests(status);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		ai_answer TEXT NOT NULL,
		human_answer TEXT NOT NULL,
		similarity_score REAL NOT NULL,
		semantic_similarity REAL NOT NULL,
		keyword_overlap REAL NOT NULL,
		explanation TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_project ON evaluations(project_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, name, file_type, file_size, file_path, indexing_status, is_questionnaire, error_message, uploaded_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Name,
		doc.FileType,
		doc.FileSize,
		doc.FilePath,
		string(doc.IndexingStatus),
		boolToInt(doc.IsQuestionnaire),
		doc.ErrorMessage,
		doc.UploadedAt.Unix(),
		timePtrToUnix(doc.IndexedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("name", doc.Name))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `
		SELECT id, name, file_type, file_size, file_path, indexing_status, is_questionnaire, error_message, uploaded_at, indexed_at
		FROM documents WHERE id = ?
	`

	var doc models.Document
	var status string
	var isQuestionnaire int
	var errMsg sql.NullString
	var uploadedAt int64
	var indexedAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Name,
		&doc.FileType,
		&doc.FileSize,
		&doc.FilePath,
		&status,
		&isQuestionnaire,
		&errMsg,
		&uploadedAt,
		&indexedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.IndexingStatus = models.IndexingStatus(status)
	doc.IsQuestionnaire = isQuestionnaire != 0
	doc.ErrorMessage = errMsg.String
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	if indexedAt.Valid {
		t := time.Unix(indexedAt.Int64, 0)
		doc.IndexedAt = &t
	}

	return &doc, nil
}

func (c *Client) ListDocuments(isQuestionnaire *bool) ([]models.Document, error) {
	query := `
		SELECT id, name, file_type, file_size, file_path, indexing_status, is_questionnaire, error_message, uploaded_at, indexed_at
		FROM documents
	`
	args := []interface{}{}
	if isQuestionnaire != nil {
		query += " WHERE is_questionnaire = ?"
		args = append(args, boolToInt(*isQuestionnaire))
	}
	query += " ORDER BY uploaded_at"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var status string
		var isQ int
		var errMsg sql.NullString
		var uploadedAt int64
		var indexedAt sql.NullInt64

		err := rows.Scan(&doc.ID, &doc.Name, &doc.FileType, &doc.FileSize, &doc.FilePath,
			&status, &isQ, &errMsg, &uploadedAt, &indexedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.IndexingStatus = models.IndexingStatus(status)
		doc.IsQuestionnaire = isQ != 0
		doc.ErrorMessage = errMsg.String
		doc.UploadedAt = time.Unix(uploadedAt, 0)
		if indexedAt.Valid {
			t := time.Unix(indexedAt.Int64, 0)
			doc.IndexedAt = &t
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) UpdateDocumentStatus(id string, status models.IndexingStatus, errorMessage string, indexedAt *time.Time) error {
	query := `UPDATE documents SET indexing_status = ?, error_message = ?, indexed_at = ? WHERE id = ?`

	res, err := c.db.Exec(query, string(status), errorMessage, timePtrToUnix(indexedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}

	return nil
}

func (c *Client) DeleteDocument(id string) error {
	res, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}

	return nil
}

// ReplaceDocumentChunks swaps the durable chunk set of a document in a
// single transaction, so the stored state never mixes old and new chunks.
func (c *Client) ReplaceDocumentChunks(documentID string, chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO document_chunks (id, document_id, tier, text, page_number, pos, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err = stmt.Exec(
			chunk.ID,
			chunk.DocumentID,
			string(chunk.Tier),
			chunk.Text,
			chunk.PageNumber,
			chunk.Offset,
			chunk.Seq,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

func (c *Client) LoadAllChunks() ([]models.Chunk, error) {
	query := `
		SELECT id, document_id, tier, text, page_number, pos, seq, created_at
		FROM document_chunks ORDER BY seq
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var tier string
		var createdAt int64

		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &tier, &chunk.Text,
			&chunk.PageNumber, &chunk.Offset, &chunk.Seq, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		chunk.Tier = models.ChunkTier(tier)
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func (c *Client) CountDocumentChunks(documentID string, tier models.ChunkTier) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = ? AND tier = ?`,
		documentID, string(tier),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (c *Client) InsertProject(p *models.Project) error {
	selectedJSON, _ := json.Marshal(p.SelectedDocumentIDs)

	query := `
		INSERT INTO projects (id, name, questionnaire_id, document_scope, selected_document_ids, status,
			total_questions, answered_questions, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		p.ID,
		p.Name,
		p.QuestionnaireID,
		string(p.DocumentScope),
		string(selectedJSON),
		string(p.Status),
		p.TotalQuestions,
		p.AnsweredQuestions,
		p.ErrorMessage,
		p.CreatedAt.Unix(),
		p.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	logger.Debug("Project inserted", zap.String("project_id", p.ID))
	return nil
}

func (c *Client) scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	var p models.Project
	var scope, status string
	var selectedJSON, errMsg sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.Name, &p.QuestionnaireID, &scope, &selectedJSON, &status,
		&p.TotalQuestions, &p.AnsweredQuestions, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.DocumentScope = models.DocumentScope(scope)
	p.Status = models.ProjectStatus(status)
	p.ErrorMessage = errMsg.String
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	if selectedJSON.Valid && selectedJSON.String != "" && selectedJSON.String != "null" {
		json.Unmarshal([]byte(selectedJSON.String), &p.SelectedDocumentIDs)
	}

	return &p, nil
}

const projectColumns = `id, name, questionnaire_id, document_scope, selected_document_ids, status,
	total_questions, answered_questions, error_message, created_at, updated_at`

func (c *Client) GetProject(id string) (*models.Project, error) {
	row := c.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)

	p, err := c.scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return p, nil
}

func (c *Client) ListProjects() ([]models.Project, error) {
	rows, err := c.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := c.scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, rows.Err()
}

// ListProjectsByScopeStatus supports the invalidation sweep.
func (c *Client) ListProjectsByScopeStatus(scope models.DocumentScope, status models.ProjectStatus) ([]models.Project, error) {
	rows, err := c.db.Query(
		`SELECT `+projectColumns+` FROM projects WHERE document_scope = ? AND status = ?`,
		string(scope), string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects by scope and status: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := c.scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, rows.Err()
}

// CommitDocumentIndexed marks the document INDEXED and, in the same
// transaction, flips READY ALL_DOCS projects to OUTDATED. No reader
// can observe the new corpus member alongside a still-READY ALL_DOCS
// project. Returns the IDs of the swept projects.
func (c *Client) CommitDocumentIndexed(documentID string, indexedAt time.Time) ([]string, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE documents SET indexing_status = ?, error_message = '', indexed_at = ? WHERE id = ?`,
		string(models.IndexingIndexed), indexedAt.Unix(), documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update document status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}

	rows, err := tx.Query(
		`SELECT id FROM projects WHERE document_scope = ? AND status = ?`,
		string(models.ScopeAllDocs), string(models.ProjectReady),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects for sweep: %w", err)
	}

	var swept []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		swept = append(swept, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(swept) > 0 {
		_, err = tx.Exec(
			`UPDATE projects SET status = ?, updated_at = ? WHERE document_scope = ? AND status = ?`,
			string(models.ProjectOutdated), time.Now().Unix(),
			string(models.ScopeAllDocs), string(models.ProjectReady),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sweep projects: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return swept, nil
}

func (c *Client) UpdateProjectStatus(id string, status models.ProjectStatus, errorMessage string) error {
	res, err := c.db.Exec(
		`UPDATE projects SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errorMessage, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}

	return nil
}

func (c *Client) UpdateProjectScope(id string, scope models.DocumentScope, selectedIDs []string) error {
	selectedJSON, _ := json.Marshal(selectedIDs)

	res, err := c.db.Exec(
		`UPDATE projects SET document_scope = ?, selected_document_ids = ?, updated_at = ? WHERE id = ?`,
		string(scope), string(selectedJSON), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project scope: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}

	return nil
}

func (c *Client) UpdateProjectCounts(id string, totalQuestions, answeredQuestions int) error {
	_, err := c.db.Exec(
		`UPDATE projects SET total_questions = ?, answered_questions = ?, updated_at = ? WHERE id = ?`,
		totalQuestions, answeredQuestions, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project counts: %w", err)
	}
	return nil
}

func (c *Client) DeleteProject(id string) error {
	res, err := c.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}

	return nil
}

// ClearProjectContent drops the project's sections, questions and
// answers, leaving the project row itself in place. Used when a failed
// build is retried.
func (c *Client) ClearProjectContent(projectID string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, query := range []string{
		`DELETE FROM answers WHERE project_id = ?`,
		`DELETE FROM questions WHERE project_id = ?`,
		`DELETE FROM sections WHERE project_id = ?`,
	} {
		if _, err := tx.Exec(query, projectID); err != nil {
			return fmt.Errorf("failed to clear project content: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (c *Client) InsertSection(s *models.Section) error {
	_, err := c.db.Exec(
		`INSERT INTO sections (id, project_id, title, ord) VALUES (?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.Title, s.Order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert section: %w", err)
	}
	return nil
}

func (c *Client) ListSections(projectID string) ([]models.Section, error) {
	rows, err := c.db.Query(
		`SELECT id, project_id, title, ord FROM sections WHERE project_id = ? ORDER BY ord`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []models.Section
	for rows.Next() {
		var s models.Section
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Order); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sections = append(sections, s)
	}

	return sections, rows.Err()
}

func (c *Client) InsertQuestion(q *models.Question) error {
	_, err := c.db.Exec(
		`INSERT INTO questions (id, project_id, section_id, text, ord) VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.ProjectID, q.SectionID, q.Text, q.Order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

func (c *Client) GetQuestion(id string) (*models.Question, error) {
	var q models.Question
	err := c.db.QueryRow(
		`SELECT id, project_id, section_id, text, ord FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.ProjectID, &q.SectionID, &q.Text, &q.Order)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return &q, nil
}

func (c *Client) ListQuestions(projectID, sectionID string) ([]models.Question, error) {
	query := `SELECT id, project_id, section_id, text, ord FROM questions WHERE project_id = ?`
	args := []interface{}{projectID}
	if sectionID != "" {
		query += ` AND section_id = ?`
		args = append(args, sectionID)
	}
	query += ` ORDER BY ord`

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.SectionID, &q.Text, &q.Order); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

func (c *Client) InsertAnswer(a *models.Answer) error {
	citationsJSON, err := json.Marshal(a.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
		INSERT INTO answers (id, question_id, project_id, status, is_answerable, ai_answer, manual_answer,
			citations, confidence_score, review_notes, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.Exec(
		query,
		a.ID,
		a.QuestionID,
		a.ProjectID,
		string(a.Status),
		boolToInt(a.IsAnswerable),
		a.AIAnswer,
		a.ManualAnswer,
		string(citationsJSON),
		a.ConfidenceScore,
		a.ReviewNotes,
		a.ErrorMessage,
		a.CreatedAt.Unix(),
		a.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}

	return nil
}

const answerColumns = `id, question_id, project_id, status, is_answerable, ai_answer, manual_answer,
	citations, confidence_score, review_notes, error_message, created_at, updated_at`

func (c *Client) scanAnswer(row interface{ Scan(...interface{}) error }) (*models.Answer, error) {
	var a models.Answer
	var status string
	var isAnswerable int
	var aiAnswer, manualAnswer, reviewNotes, errMsg sql.NullString
	var citationsJSON string
	var confidence sql.NullFloat64
	var createdAt, updatedAt int64

	err := row.Scan(&a.ID, &a.QuestionID, &a.ProjectID, &status, &isAnswerable,
		&aiAnswer, &manualAnswer, &citationsJSON, &confidence, &reviewNotes, &errMsg,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = models.AnswerStatus(status)
	a.IsAnswerable = isAnswerable != 0
	if aiAnswer.Valid {
		a.AIAnswer = &aiAnswer.String
	}
	if manualAnswer.Valid {
		a.ManualAnswer = &manualAnswer.String
	}
	a.Citations = []models.Citation{}
	json.Unmarshal([]byte(citationsJSON), &a.Citations)
	if confidence.Valid {
		a.ConfidenceScore = &confidence.Float64
	}
	a.ReviewNotes = reviewNotes.String
	a.ErrorMessage = errMsg.String
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

func (c *Client) GetAnswer(id string) (*models.Answer, error) {
	row := c.db.QueryRow(`SELECT `+answerColumns+` FROM answers WHERE id = ?`, id)

	a, err := c.scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("answer %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return a, nil
}

func (c *Client) GetAnswerByQuestion(questionID string) (*models.Answer, error) {
	row := c.db.QueryRow(`SELECT `+answerColumns+` FROM answers WHERE question_id = ?`, questionID)

	a, err := c.scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("answer for question %s: %w", questionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return a, nil
}

func (c *Client) ListProjectAnswers(projectID string) ([]models.Answer, error) {
	rows, err := c.db.Query(`SELECT `+answerColumns+` FROM answers WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		a, err := c.scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		answers = append(answers, *a)
	}

	return answers, rows.Err()
}

func (c *Client) UpdateAnswer(a *models.Answer) error {
	citationsJSON, err := json.Marshal(a.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
		UPDATE answers SET status = ?, is_answerable = ?, ai_answer = ?, manual_answer = ?,
			citations = ?, confidence_score = ?, review_notes = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := c.db.Exec(
		query,
		string(a.Status),
		boolToInt(a.IsAnswerable),
		a.AIAnswer,
		a.ManualAnswer,
		string(citationsJSON),
		a.ConfidenceScore,
		a.ReviewNotes,
		a.ErrorMessage,
		time.Now().Unix(),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("answer %s: %w", a.ID, models.ErrNotFound)
	}

	return nil
}

func (c *Client) CountAnsweredQuestions(projectID string) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM answers WHERE project_id = ? AND status != ?`,
		projectID, string(models.AnswerPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count answered questions: %w", err)
	}
	return count, nil
}

func (c *Client) InsertRequest(r *models.AsyncRequest) error {
	query := `
		INSERT INTO async_requests (id, request_type, status, progress, result, error_message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		r.ID,
		r.RequestType,
		string(r.Status),
		r.Progress,
		nullableBytes(r.Result),
		r.ErrorMessage,
		r.CreatedAt.Unix(),
		r.UpdatedAt.Unix(),
		timePtrToUnix(r.CompletedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	return nil
}

func (c *Client) GetRequest(id string) (*models.AsyncRequest, error) {
	query := `
		SELECT id, request_type, status, progress, result, error_message, created_at, updated_at, completed_at
		FROM async_requests WHERE id = ?
	`

	var r models.AsyncRequest
	var status string
	var result sql.NullString
	var errMsg sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(&r.ID, &r.RequestType, &status, &r.Progress,
		&result, &errMsg, &createdAt, &updatedAt, &completedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	r.Status = models.RequestStatus(status)
	if result.Valid {
		r.Result = []byte(result.String)
	}
	r.ErrorMessage = errMsg.String
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		r.CompletedAt = &t
	}

	return &r, nil
}

func (c *Client) UpdateRequest(r *models.AsyncRequest) error {
	query := `
		UPDATE async_requests SET status = ?, progress = ?, result = ?, error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`

	_, err := c.db.Exec(
		query,
		string(r.Status),
		r.Progress,
		nullableBytes(r.Result),
		r.ErrorMessage,
		time.Now().Unix(),
		timePtrToUnix(r.CompletedAt),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}

	return nil
}

func (c *Client) InsertEvaluation(e *models.EvaluationResult) error {
	query := `
		INSERT INTO evaluations (id, question_id, project_id, ai_answer, human_answer,
			similarity_score, semantic_similarity, keyword_overlap, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		e.ID,
		e.QuestionID,
		e.ProjectID,
		e.AIAnswer,
		e.HumanAnswer,
		e.SimilarityScore,
		e.SemanticSimilarity,
		e.KeywordOverlap,
		e.Explanation,
		e.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	return nil
}

func (c *Client) ListProjectEvaluations(projectID string) ([]models.EvaluationResult, error) {
	query := `
		SELECT id, question_id, project_id, ai_answer, human_answer,
			similarity_score, semantic_similarity, keyword_overlap, explanation, created_at
		FROM evaluations WHERE project_id = ? ORDER BY created_at
	`

	rows, err := c.db.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var results []models.EvaluationResult
	for rows.Next() {
		var e models.EvaluationResult
		var createdAt int64

		err := rows.Scan(&e.ID, &e.QuestionID, &e.ProjectID, &e.AIAnswer, &e.HumanAnswer,
			&e.SimilarityScore, &e.SemanticSimilarity, &e.KeywordOverlap, &e.Explanation, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, e)
	}

	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
