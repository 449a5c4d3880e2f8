package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Question types.
const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionText           = "text"
)

// Question is one questionnaire item.
type Question struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
}

// Category groups related questions under a title.
type Category struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// ErrNoQuestionnaire is returned when a reply holds no JSON array.
var ErrNoQuestionnaire = errors.New("reply contains no questionnaire")

var codeFencePattern = regexp.MustCompile("(?i)```(?:json)?")

// looseCategory and looseQuestion accept whatever shape the model returns.
type looseCategory struct {
	Title     string          `json:"title"`
	Questions []looseQuestion `json:"questions"`
}

type looseQuestion struct {
	Question string `json:"question"`
	Type     string `json:"type"`
	Options  []any  `json:"options"`
}

// ParseQuestionnaire decodes a questionnaire reply. Code fences and prose around
// the JSON are ignored. Missing titles become "Untitled", missing questions
// become "Your input", and a question is multiple-choice only when it has options.
func ParseQuestionnaire(raw string) ([]Category, error) {
	body := strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, ""))

	start := strings.IndexAny(body, "[{")
	end := strings.LastIndexAny(body, "]}")
	if start < 0 || end < start {
		return nil, ErrNoQuestionnaire
	}
	body = body[start : end+1]

	var loose []looseCategory
	if err := json.Unmarshal([]byte(body), &loose); err != nil {
		return nil, fmt.Errorf("decode questionnaire: %w", err)
	}

	categories := make([]Category, 0, len(loose))
	for _, lc := range loose {
		c := Category{
			Title:     strings.TrimSpace(lc.Title),
			Questions: make([]Question, 0, len(lc.Questions)),
		}
		if c.Title == "" {
			c.Title = "Untitled"
		}
		for _, lq := range lc.Questions {
			c.Questions = append(c.Questions, cleanQuestion(lq))
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func cleanQuestion(lq looseQuestion) Question {
	q := Question{Question: strings.TrimSpace(lq.Question), Type: QuestionText}
	if q.Question == "" {
		q.Question = "Your input"
	}
	for _, o := range lq.Options {
		s := strings.TrimSpace(fmt.Sprint(o))
		if o == nil || s == "" {
			continue
		}
		q.Options = append(q.Options, s)
	}
	if len(q.Options) > 0 {
		q.Type = QuestionMultipleChoice
	}
	return q
}
