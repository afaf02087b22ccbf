package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/extraction"
	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Service manages document records and their files on disk. Indexing
// itself is owned by the ingestion processor; this layer covers
// upload, listing and deletion.
type Service struct {
	db        *sqlite.Client
	idx       *index.Index
	uploadDir string
}

func NewService(db *sqlite.Client, idx *index.Index, uploadDir string) (*Service, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Service{db: db, idx: idx, uploadDir: uploadDir}, nil
}

// Upload stores the file and registers a PENDING document.
func (s *Service) Upload(name string, data []byte, isQuestionnaire bool) (*models.Document, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, fmt.Errorf("%w: file name is required", models.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", models.ErrValidation)
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !slices.Contains(extraction.SupportedTypes(), fileType) {
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrValidation, fileType)
	}

	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &models.Document{
		ID:              id,
		Name:            name,
		FileType:        fileType,
		FileSize:        int64(len(data)),
		FilePath:        path,
		IndexingStatus:  models.IndexingPending,
		IsQuestionnaire: isQuestionnaire,
		UploadedAt:      time.Now().UTC(),
	}

	if err := s.db.InsertDocument(doc); err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			logger.Warn("Failed to remove orphaned upload", zap.String("path", path), zap.Error(removeErr))
		}
		return nil, err
	}

	logger.Info("Document uploaded",
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.Name),
		zap.Int64("size", doc.FileSize),
		zap.Bool("questionnaire", doc.IsQuestionnaire),
	)

	return doc, nil
}

// Register records an existing file on disk as a PENDING document
// without copying it into the upload directory.
func (s *Service) Register(path string, isQuestionnaire bool) (*models.Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: file path is required", models.ErrValidation)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: file %s is not readable", models.ErrValidation, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", models.ErrValidation, path)
	}

	name := filepath.Base(path)
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !slices.Contains(extraction.SupportedTypes(), fileType) {
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrValidation, fileType)
	}

	doc := &models.Document{
		ID:              uuid.New().String(),
		Name:            name,
		FileType:        fileType,
		FileSize:        info.Size(),
		FilePath:        path,
		IndexingStatus:  models.IndexingPending,
		IsQuestionnaire: isQuestionnaire,
		UploadedAt:      time.Now().UTC(),
	}

	if err := s.db.InsertDocument(doc); err != nil {
		return nil, err
	}

	logger.Info("Document registered",
		zap.String("doc_id", doc.ID),
		zap.String("path", path),
		zap.Bool("questionnaire", doc.IsQuestionnaire),
	)

	return doc, nil
}

func (s *Service) Get(documentID string) (*models.Document, error) {
	return s.db.GetDocument(documentID)
}

func (s *Service) List(isQuestionnaire *bool) ([]models.Document, error) {
	return s.db.ListDocuments(isQuestionnaire)
}

// Delete removes the document from the index and the database, and
// deletes the file when it lives in the upload directory. Registered
// files outside it are left alone. Existing project answers keep their
// citations; references into a deleted document simply stop resolving.
func (s *Service) Delete(documentID string) error {
	doc, err := s.db.GetDocument(documentID)
	if err != nil {
		return err
	}

	metrics.IndexChunksTotal.WithLabelValues(string(models.TierRetrieval)).
		Sub(float64(s.idx.CountDocument(models.TierRetrieval, documentID)))
	metrics.IndexChunksTotal.WithLabelValues(string(models.TierCitation)).
		Sub(float64(s.idx.CountDocument(models.TierCitation, documentID)))
	s.idx.RemoveDocument(documentID)

	if err := s.db.DeleteDocument(documentID); err != nil {
		return err
	}

	if !strings.HasPrefix(doc.FilePath, s.uploadDir+string(filepath.Separator)) {
		logger.Info("Document deleted", zap.String("doc_id", documentID))
		return nil
	}

	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove document file",
			zap.String("path", doc.FilePath),
			zap.Error(err),
		)
	}

	logger.Info("Document deleted", zap.String("doc_id", documentID))
	return nil
}
