package session

import "github.com/aptibase/aptibase/internal/bank"

// Score tallies one session. An unanswered question counts as wrong, never
// dropped, so correct+wrong always equals len(questions). The percentage is
// 100 * correct / total with no rounding.
func Score(questions []bank.Question, selected map[string]string) (correct, wrong int, pct float64) {
	for _, q := range questions {
		if selected[q.ID] == q.CorrectOption {
			correct++
		} else {
			wrong++
		}
	}
	if len(questions) > 0 {
		pct = 100 * float64(correct) / float64(len(questions))
	}
	return correct, wrong, pct
}
