package memory

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"trivia-room-service/internal/domain"
)

//go:embed seed/questions.yaml
var seedQuestionsYAML []byte

// SeedQuestions decodes the bundled question set.
func SeedQuestions() ([]domain.Question, error) {
	return ParseQuestions(seedQuestionsYAML)
}

// ParseQuestions decodes a YAML list of questions and checks their shape.
func ParseQuestions(data []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question without id")
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= domain.OptionCount {
			return nil, fmt.Errorf("question %q: correct answer out of range", q.ID)
		}
	}
	return questions, nil
}
