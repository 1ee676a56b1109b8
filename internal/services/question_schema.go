package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"feedbackapp/internal/models"
	contextutils "feedbackapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
)

// QuestionListSchema constrains the JSONB question payload stored on
// templates and periods. Every insert and update validates against it; reads
// trust what is already stored and fail soft on unparseable data.
const QuestionListSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "text", "type"],
    "additionalProperties": false,
    "properties": {
      "id": {
        "type": "string",
        "minLength": 1,
        "maxLength": 100,
        "pattern": "^[a-zA-Z0-9_-]+$"
      },
      "text": {
        "type": "string",
        "minLength": 1,
        "maxLength": 500
      },
      "type": {
        "type": "string",
        "enum": ["rating"]
      }
    }
  }
}`

// ValidateQuestionList validates a question list against the storage schema
// and rejects duplicate question ids. Called before any template or period
// write that carries questions.
func ValidateQuestionList(questions models.QuestionList) (err error) {
	data, err := json.Marshal(questions)
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal questions for validation")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(QuestionListSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return contextutils.WrapError(err, "question schema validation failed to run")
	}

	if !result.Valid() {
		var errorMessages []string
		for _, e := range result.Errors() {
			errorMessages = append(errorMessages, e.String())
		}
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed,
			"questions failed schema validation: %s", strings.Join(errorMessages, "; "))
	}

	// The schema cannot express cross-item uniqueness
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if seen[q.ID] {
			return contextutils.WrapErrorf(contextutils.ErrValidationFailed,
				"duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}

	return nil
}

// questionsParam marshals a question list for a JSONB statement parameter
func questionsParam(questions models.QuestionList) (result0 string, err error) {
	if questions == nil {
		questions = models.QuestionList{}
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to marshal questions")
	}
	return string(data), nil
}

// scanQuestions parses a stored JSONB question list. Read paths treat
// unparseable data as an empty list so one bad row never aborts a listing or
// aggregation; the caller logs the returned parse error.
func scanQuestions(raw []byte) (result0 models.QuestionList, err error) {
	if len(raw) == 0 {
		return models.QuestionList{}, nil
	}
	var ql models.QuestionList
	if err := json.Unmarshal(raw, &ql); err != nil {
		return models.QuestionList{}, fmt.Errorf("unparseable stored questions: %w", err)
	}
	if ql == nil {
		ql = models.QuestionList{}
	}
	return ql, nil
}
