package models

import "time"

type IndexingStatus string

const (
	IndexingPending IndexingStatus = "PENDING"
	IndexingRunning IndexingStatus = "INDEXING"
	IndexingIndexed IndexingStatus = "INDEXED"
	IndexingFailed  IndexingStatus = "FAILED"
)

type ProjectStatus string

const (
	ProjectCreating   ProjectStatus = "CREATING"
	ProjectReady      ProjectStatus = "READY"
	ProjectGenerating ProjectStatus = "GENERATING"
	ProjectOutdated   ProjectStatus = "OUTDATED"
	ProjectError      ProjectStatus = "ERROR"
)

type DocumentScope string

const (
	ScopeAllDocs      DocumentScope = "ALL_DOCS"
	ScopeSelectedDocs DocumentScope = "SELECTED_DOCS"
)

type AnswerStatus string

const (
	AnswerPending       AnswerStatus = "PENDING"
	AnswerGenerated     AnswerStatus = "GENERATED"
	AnswerConfirmed     AnswerStatus = "CONFIRMED"
	AnswerRejected      AnswerStatus = "REJECTED"
	AnswerManualUpdated AnswerStatus = "MANUAL_UPDATED"
	AnswerMissingData   AnswerStatus = "MISSING_DATA"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestCompleted  RequestStatus = "COMPLETED"
	RequestFailed     RequestStatus = "FAILED"
)

type ChunkTier string

const (
	TierRetrieval ChunkTier = "retrieval"
	TierCitation  ChunkTier = "citation"
)

type Document struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	FileType        string         `json:"file_type"`
	FileSize        int64          `json:"file_size"`
	FilePath        string         `json:"file_path"`
	IndexingStatus  IndexingStatus `json:"indexing_status"`
	IsQuestionnaire bool           `json:"is_questionnaire"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	UploadedAt      time.Time      `json:"uploaded_at"`
	IndexedAt       *time.Time     `json:"indexed_at,omitempty"`
}

// Chunk is a single text span in one of the two index tiers.
// Seq is the insertion order within its tier, used for stable tie-breaks.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Tier       ChunkTier `json:"tier"`
	Text       string    `json:"text"`
	PageNumber int       `json:"page_number"`
	Offset     int       `json:"offset"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
}

type Project struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	QuestionnaireID     string        `json:"questionnaire_id"`
	DocumentScope       DocumentScope `json:"document_scope"`
	SelectedDocumentIDs []string      `json:"selected_document_ids,omitempty"`
	Status              ProjectStatus `json:"status"`
	TotalQuestions      int           `json:"total_questions"`
	AnsweredQuestions   int           `json:"answered_questions"`
	ErrorMessage        string        `json:"error_message,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type Section struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Title     string     `json:"title"`
	Order     int        `json:"order"`
	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	SectionID string `json:"section_id"`
	Text      string `json:"text"`
	Order     int    `json:"order"`
}

type Reference struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkID      string `json:"chunk_id"`
	PageNumber   int    `json:"page_number,omitempty"`
	BoundingBox  *Box   `json:"bounding_box,omitempty"`
	Text         string `json:"text"`
}

type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

type Citation struct {
	Text       string      `json:"text"`
	References []Reference `json:"references"`
}

type Answer struct {
	ID              string       `json:"id"`
	QuestionID      string       `json:"question_id"`
	ProjectID       string       `json:"project_id"`
	Status          AnswerStatus `json:"status"`
	IsAnswerable    bool         `json:"is_answerable"`
	AIAnswer        *string      `json:"ai_answer,omitempty"`
	ManualAnswer    *string      `json:"manual_answer,omitempty"`
	Citations       []Citation   `json:"citations"`
	ConfidenceScore *float64     `json:"confidence_score,omitempty"`
	ReviewNotes     string       `json:"review_notes,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type AsyncRequest struct {
	ID           string        `json:"id"`
	RequestType  string        `json:"request_type"`
	Status       RequestStatus `json:"status"`
	Progress     int           `json:"progress"`
	Result       []byte        `json:"result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// Terminal reports whether the request has reached a final state.
func (r *AsyncRequest) Terminal() bool {
	return r.Status == RequestCompleted || r.Status == RequestFailed
}

type EvaluationResult struct {
	ID                 string    `json:"id"`
	QuestionID         string    `json:"question_id"`
	ProjectID          string    `json:"project_id"`
	AIAnswer           string    `json:"ai_answer"`
	HumanAnswer        string    `json:"human_answer"`
	SimilarityScore    float64   `json:"similarity_score"`
	SemanticSimilarity float64   `json:"semantic_similarity"`
	KeywordOverlap     float64   `json:"keyword_overlap"`
	Explanation        string    `json:"explanation"`
	CreatedAt          time.Time `json:"created_at"`
}
