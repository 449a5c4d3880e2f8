package ops

import (
	"context"

	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

// QuestionsInput contains parameters for the Questions operation.
type QuestionsInput struct {
	Params suggest.Params
}

// QuestionsOutput contains the result of the Questions operation.
type QuestionsOutput struct {
	Categories []suggest.Category `json:"categories"`
	Count      int                `json:"count"`
}

// Questions asks the generator for a follow-up questionnaire. Replies are not
// cached; each call is one generation request.
func (s *Service) Questions(ctx context.Context, input QuestionsInput) (*QuestionsOutput, error) {
	if input.Params.IsEmpty() {
		return nil, errors.NewInvalidRequest("params must describe the product (idea, product type, category...)")
	}

	answer, err := s.generate(ctx, purposeQuestionnaire, suggest.QuestionnairePrompt(input.Params))
	if err != nil {
		return nil, err
	}

	cats, err := suggest.ParseQuestionnaire(answer)
	if err != nil {
		return nil, errors.NewUpstreamFailure("generator", err)
	}

	n := 0
	for _, c := range cats {
		n += len(c.Questions)
	}
	return &QuestionsOutput{Categories: cats, Count: n}, nil
}
