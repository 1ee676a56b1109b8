package services

import (
	"strings"
	"testing"

	"feedbackapp/internal/models"
	contextutils "feedbackapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func question(id, text string) models.Question {
	return models.Question{ID: id, Text: text, Type: "rating"}
}

func TestValidateQuestionList_Valid(t *testing.T) {
	questions := models.QuestionList{
		question("responsiveness", "How responsive is the department?"),
		question("collaboration", "How well does the department collaborate?"),
	}

	assert.NoError(t, ValidateQuestionList(questions))
}

func TestValidateQuestionList_EmptyList(t *testing.T) {
	err := ValidateQuestionList(models.QuestionList{})
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrValidationFailed))
}

func TestValidateQuestionList_NilList(t *testing.T) {
	// nil marshals to JSON null, which the array schema rejects
	err := ValidateQuestionList(nil)
	require.Error(t, err)
}

func TestValidateQuestionList_MissingFields(t *testing.T) {
	tests := []struct {
		name     string
		question models.Question
	}{
		{"missing id", models.Question{Text: "How responsive?", Type: "rating"}},
		{"missing text", models.Question{ID: "q1", Type: "rating"}},
		{"missing type", models.Question{ID: "q1", Text: "How responsive?"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestionList(models.QuestionList{tt.question})
			require.Error(t, err)
			assert.True(t, contextutils.IsError(err, contextutils.ErrValidationFailed))
		})
	}
}

func TestValidateQuestionList_UnsupportedType(t *testing.T) {
	questions := models.QuestionList{
		{ID: "q1", Text: "Any comments?", Type: "free_text"},
	}

	err := ValidateQuestionList(questions)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrValidationFailed))
}

func TestValidateQuestionList_InvalidIDCharacters(t *testing.T) {
	tests := []string{"has space", "has.dot", "has/slash", "ümlaut"}

	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			err := ValidateQuestionList(models.QuestionList{question(id, "Some question text")})
			require.Error(t, err)
		})
	}
}

func TestValidateQuestionList_LengthLimits(t *testing.T) {
	longID := strings.Repeat("a", 101)
	err := ValidateQuestionList(models.QuestionList{question(longID, "Some question text")})
	require.Error(t, err)

	longText := strings.Repeat("x", 501)
	err = ValidateQuestionList(models.QuestionList{question("q1", longText)})
	require.Error(t, err)

	// At the limits everything passes
	okID := strings.Repeat("a", 100)
	okText := strings.Repeat("x", 500)
	assert.NoError(t, ValidateQuestionList(models.QuestionList{question(okID, okText)}))
}

func TestValidateQuestionList_DuplicateIDs(t *testing.T) {
	questions := models.QuestionList{
		question("q1", "First question"),
		question("q2", "Second question"),
		question("q1", "Duplicate of the first"),
	}

	err := ValidateQuestionList(questions)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrValidationFailed))
	assert.Contains(t, err.Error(), "duplicate question id")
}

func TestQuestionsParam_NilBecomesEmptyArray(t *testing.T) {
	param, err := questionsParam(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", param)
}

func TestQuestionsParam_RoundTripsThroughScan(t *testing.T) {
	questions := models.QuestionList{
		question("q1", "First question"),
		question("q2", "Second question"),
	}

	param, err := questionsParam(questions)
	require.NoError(t, err)

	parsed, err := scanQuestions([]byte(param))
	require.NoError(t, err)
	assert.Equal(t, questions, parsed)
}

func TestScanQuestions_EmptyAndInvalidInput(t *testing.T) {
	parsed, err := scanQuestions(nil)
	require.NoError(t, err)
	assert.Empty(t, parsed)

	parsed, err = scanQuestions([]byte("not json"))
	require.Error(t, err)
	assert.NotNil(t, parsed)
	assert.Empty(t, parsed)

	parsed, err = scanQuestions([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, parsed)
	assert.Empty(t, parsed)
}
