package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "SINGLE_CHOICE"
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
)

// TrueFalseOptions is the fixed option set of every TRUE_FALSE question.
var TrueFalseOptions = []string{"True", "False"}

const defaultTimeLimit = 30

type Quiz struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Topic       string      `json:"topic"`
	Difficulty  Difficulty  `json:"difficulty"`
	TimeLimit   int         `json:"timeLimit"` // minutes
	Questions   []*Question `json:"questions"`
}

type Question struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	QuestionType   QuestionType `json:"questionType"`
	Options        []string     `json:"options"`
	CorrectOptions []int        `json:"correctOptions"`
	Explanation    string       `json:"explanation"`
}

// Normalize applies the editor defaults and type rules, then validates.
func (q *Quiz) Normalize() error {
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	q.Difficulty = Difficulty(strings.ToLower(string(q.Difficulty)))
	switch q.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("quiz %q: unknown difficulty %q", q.ID, q.Difficulty)
	}
	if q.TimeLimit == 0 {
		q.TimeLimit = defaultTimeLimit
	}
	if q.TimeLimit < 0 {
		return fmt.Errorf("quiz %q: negative timeLimit %d", q.ID, q.TimeLimit)
	}
	if q.Questions == nil {
		q.Questions = []*Question{}
	}
	seen := map[string]bool{}
	for i, question := range q.Questions {
		if question == nil {
			return fmt.Errorf("quiz %q: question %d is null", q.ID, i)
		}
		if err := question.Normalize(); err != nil {
			return fmt.Errorf("quiz %q: question %d: %w", q.ID, i, err)
		}
		if question.ID != "" {
			if seen[question.ID] {
				return fmt.Errorf("quiz %q: duplicate question id %q", q.ID, question.ID)
			}
			seen[question.ID] = true
		}
	}
	return nil
}

// Normalize enforces the option/answer shape of the question type:
// TRUE_FALSE always has options True/False and one answer (defaulting to True),
// SINGLE_CHOICE keeps its first answer, MULTIPLE_CHOICE dedupes and sorts.
func (q *Question) Normalize() error {
	if q.QuestionType == "" {
		q.QuestionType = SingleChoice
	}
	q.QuestionType = QuestionType(strings.ToUpper(string(q.QuestionType)))

	switch q.QuestionType {
	case TrueFalse:
		q.Options = append([]string(nil), TrueFalseOptions...)
		if len(q.CorrectOptions) == 0 {
			q.CorrectOptions = []int{0}
		}
		q.CorrectOptions = q.CorrectOptions[:1]
	case SingleChoice:
		if len(q.CorrectOptions) > 1 {
			q.CorrectOptions = q.CorrectOptions[:1]
		}
	case MultipleChoice:
		q.CorrectOptions = dedupeSortedInts(q.CorrectOptions)
	default:
		return fmt.Errorf("unknown questionType %q", q.QuestionType)
	}

	if len(q.Options) < 2 {
		return fmt.Errorf("question %q: at least two options are required, got %d", q.ID, len(q.Options))
	}
	if len(q.CorrectOptions) == 0 {
		return fmt.Errorf("question %q: at least one correct option is required", q.ID)
	}
	for _, idx := range q.CorrectOptions {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("question %q: correct option %d out of range [0,%d)", q.ID, idx, len(q.Options))
		}
	}
	return nil
}

func dedupeSortedInts(in []int) []int {
	if len(in) == 0 {
		return in
	}
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
