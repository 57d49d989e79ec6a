package domain

// Score counts the questions in batch whose recorded answer matches the answer key.
// Unanswered questions are simply incorrect.
func Score(answers AnswerSet, batch []Question) int {
	score := 0
	for _, q := range batch {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			score++
		}
	}
	return score
}

// Percentage returns score/total*100, or 0 for an empty batch.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}

// GradeFor maps a percentage onto the results-screen grade.
func GradeFor(percentage float64) Grade {
	switch {
	case percentage >= 70:
		return GradeExcellent
	case percentage >= 40:
		return GradeQualified
	default:
		return GradeNeedsWork
	}
}
