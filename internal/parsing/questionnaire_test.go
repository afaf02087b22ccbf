package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddq-agent/backend/internal/storage/models"
)

const sampleQuestionnaire = `Section 1: Financials

1. What was the revenue growth over the last three years?
2. Describe the company's debt structure.

Section 2: Security

Do you maintain an information security policy?
The following pages list supporting material.
`

func TestParseSectionsAndQuestions(t *testing.T) {
	p := NewQuestionnaireParser()

	sections, err := p.Parse(sampleQuestionnaire)

	require.NoError(t, err)
	require.Len(t, sections, 2)

	assert.Equal(t, "Financials", sections[0].Title)
	require.Len(t, sections[0].Questions, 2)
	assert.Equal(t, "What was the revenue growth over the last three years?", sections[0].Questions[0])
	assert.Equal(t, "Describe the company's debt structure.", sections[0].Questions[1])

	assert.Equal(t, "Security", sections[1].Title)
	require.Len(t, sections[1].Questions, 1)
	assert.Equal(t, "Do you maintain an information security policy?", sections[1].Questions[0])
}

func TestParseWithoutHeadings(t *testing.T) {
	p := NewQuestionnaireParser()

	sections, err := p.Parse("What is your headcount?\nWhere are your offices located?\n")

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "General", sections[0].Title)
	assert.Len(t, sections[0].Questions, 2)
}

func TestParseNoQuestions(t *testing.T) {
	p := NewQuestionnaireParser()

	_, err := p.Parse("This document contains only statements.\nNothing is asked here.\n")

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestParseEmptyText(t *testing.T) {
	p := NewQuestionnaireParser()

	_, err := p.Parse("")

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestIsQuestion(t *testing.T) {
	assert.True(t, isQuestion("What is your revenue?"))
	assert.True(t, isQuestion("3. Describe your backup strategy."))
	assert.True(t, isQuestion("Provide a list of subsidiaries."))
	assert.False(t, isQuestion("The company was founded in 2001."))
	assert.False(t, isQuestion(""))
}
