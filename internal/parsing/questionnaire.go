package parsing

import (
	"fmt"
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/ddq-agent/backend/internal/storage/models"
)

// ParsedSection is one questionnaire section with its questions in
// document order.
type ParsedSection struct {
	Title     string
	Questions []string
}

// QuestionnaireParser turns the extracted text of a questionnaire
// document into sections and questions. Section boundaries come from
// heading-shaped lines; questions come from sentence segmentation of
// the section body.
type QuestionnaireParser struct{}

func NewQuestionnaireParser() *QuestionnaireParser {
	return &QuestionnaireParser{}
}

var (
	headingRe = regexp.MustCompile(`^(?:Section\s+\d+[.:]?\s*|\d+[.)]\s+)([A-Z][^?]*)$`)
	numberRe  = regexp.MustCompile(`^\d+(?:\.\d+)*[.)]?\s+`)
)

// question-like imperatives common in due-diligence questionnaires.
var imperativeLeads = []string{
	"describe", "explain", "provide", "list", "detail", "confirm",
	"outline", "state", "specify", "indicate",
}

// Parse extracts sections and questions. Text with no recognizable
// questions is a validation error; text with questions but no headings
// lands everything in a single "General" section.
func (p *QuestionnaireParser) Parse(text string) ([]ParsedSection, error) {
	var sections []ParsedSection
	current := ParsedSection{Title: "General"}

	flush := func() {
		if len(current.Questions) > 0 {
			sections = append(sections, current)
		}
	}

	var body strings.Builder
	drain := func() {
		current.Questions = append(current.Questions, extractQuestions(body.String())...)
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil && !isQuestion(line) {
			drain()
			flush()
			current = ParsedSection{Title: strings.TrimSpace(m[1])}
			continue
		}

		body.WriteString(line)
		body.WriteString("\n")
	}
	drain()
	flush()

	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no questions found in questionnaire", models.ErrValidation)
	}

	return sections, nil
}

// extractQuestions segments the body into sentences and keeps the
// question-shaped ones.
func extractQuestions(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var questions []string
	seen := make(map[string]struct{})

	add := func(s string) {
		s = strings.TrimSpace(numberRe.ReplaceAllString(strings.TrimSpace(s), ""))
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		questions = append(questions, s)
	}

	doc, err := prose.NewDocument(body,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		// Segmentation failure degrades to line splitting.
		for _, line := range strings.Split(body, "\n") {
			if isQuestion(line) {
				add(line)
			}
		}
		return questions
	}

	for _, sent := range doc.Sentences() {
		if isQuestion(sent.Text) {
			add(sent.Text)
		}
	}

	return questions
}

func isQuestion(s string) bool {
	s = strings.TrimSpace(numberRe.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" {
		return false
	}
	if strings.HasSuffix(s, "?") {
		return true
	}

	first := strings.ToLower(strings.Fields(s)[0])
	for _, lead := range imperativeLeads {
		if first == lead {
			return true
		}
	}
	return false
}
