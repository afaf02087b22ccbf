package evaluation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Service compares AI answers against human reference answers. The
// combined score weighs whole-vocabulary Jaccard similarity at 0.6 and
// content-keyword overlap at 0.4.
type Service struct {
	db *sqlite.Client
}

func NewService(db *sqlite.Client) *Service {
	return &Service{db: db}
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "with": {},
	"for": {}, "from": {}, "this": {}, "that": {},
}

// Evaluate scores the question's AI answer against a human answer and
// persists the result. A question without a generated AI answer cannot
// be evaluated.
func (s *Service) Evaluate(questionID, humanAnswer string) (*models.EvaluationResult, error) {
	if strings.TrimSpace(humanAnswer) == "" {
		return nil, fmt.Errorf("%w: human answer is required", models.ErrValidation)
	}

	answer, err := s.db.GetAnswerByQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if answer.AIAnswer == nil {
		return nil, fmt.Errorf("%w: question %s has no AI answer to evaluate", models.ErrValidation, questionID)
	}

	aiAnswer := *answer.AIAnswer
	semantic := jaccard(aiAnswer, humanAnswer)
	keyword := keywordOverlap(aiAnswer, humanAnswer)
	similarity := 0.6*semantic + 0.4*keyword

	result := &models.EvaluationResult{
		ID:                 uuid.New().String(),
		QuestionID:         questionID,
		ProjectID:          answer.ProjectID,
		AIAnswer:           aiAnswer,
		HumanAnswer:        humanAnswer,
		SimilarityScore:    similarity,
		SemanticSimilarity: semantic,
		KeywordOverlap:     keyword,
		Explanation:        explanation(similarity),
		CreatedAt:          time.Now().UTC(),
	}

	if err := s.db.InsertEvaluation(result); err != nil {
		return nil, err
	}

	logger.Info("Answer evaluated",
		zap.String("question_id", questionID),
		zap.Float64("similarity", similarity),
	)

	return result, nil
}

// ProjectReport aggregates a project's evaluations. High covers
// similarity >= 0.7, medium >= 0.4, low the rest.
type ProjectReport struct {
	ProjectID      string                    `json:"project_id"`
	Results        []models.EvaluationResult `json:"results"`
	MeanSimilarity float64                   `json:"mean_similarity"`
	HighCount      int                       `json:"high_count"`
	MediumCount    int                       `json:"medium_count"`
	LowCount       int                       `json:"low_count"`
}

func (s *Service) Report(projectID string) (*ProjectReport, error) {
	results, err := s.db.ListProjectEvaluations(projectID)
	if err != nil {
		return nil, err
	}

	report := &ProjectReport{ProjectID: projectID, Results: results}
	if len(results) == 0 {
		return report, nil
	}

	var sum float64
	for _, r := range results {
		sum += r.SimilarityScore
		switch {
		case r.SimilarityScore >= 0.7:
			report.HighCount++
		case r.SimilarityScore >= 0.4:
			report.MediumCount++
		default:
			report.LowCount++
		}
	}
	report.MeanSimilarity = sum / float64(len(results))

	return report, nil
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, ".,;:!?()\"'")] = struct{}{}
	}
	delete(set, "")
	return set
}

func jaccard(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// keywords keeps content-bearing words: longer than three characters
// and not a stopword.
func keywords(text string) map[string]struct{} {
	set := wordSet(text)
	for w := range set {
		if len(w) <= 3 {
			delete(set, w)
			continue
		}
		if _, ok := stopwords[w]; ok {
			delete(set, w)
		}
	}
	return set
}

func keywordOverlap(a, b string) float64 {
	keysA, keysB := keywords(a), keywords(b)
	if len(keysA) == 0 || len(keysB) == 0 {
		return 0
	}

	intersection := 0
	for w := range keysA {
		if _, ok := keysB[w]; ok {
			intersection++
		}
	}

	smaller := len(keysA)
	if len(keysB) < smaller {
		smaller = len(keysB)
	}
	return float64(intersection) / float64(smaller)
}

func explanation(similarity float64) string {
	switch {
	case similarity >= 0.8:
		return "Excellent match: the AI answer closely mirrors the human answer."
	case similarity >= 0.6:
		return "Good match: the AI answer covers most of the human answer."
	case similarity >= 0.4:
		return "Moderate match: the AI answer shares some content with the human answer."
	default:
		return "Low match: the AI answer diverges substantially from the human answer."
	}
}
