package engine

import "math"

// Result is the outcome of automatic scoring.
type Result struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// Score grades a snapshot against the question list. Unanswered questions
// count as incorrect. The result is round(100 * correct / total).
func Score(questions []Question, answers Snapshot) (Result, error) {
	total := len(questions)
	if total == 0 {
		return Result{}, ErrNoQuestions
	}

	correct := 0
	for _, q := range questions {
		if answers.Get(q.ID).Equal(q.Correct) {
			correct++
		}
	}

	return Result{
		Correct: correct,
		Total:   total,
		Percent: int(math.Round(100 * float64(correct) / float64(total))),
	}, nil
}
