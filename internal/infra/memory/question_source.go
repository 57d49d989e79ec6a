package memory

import (
	"context"

	"faculty-quiz-service/internal/domain"
)

// StaticQuestionSource serves a fixed batch (useful for tests/demos and when no API key is configured).
type StaticQuestionSource struct {
	batch []domain.Question
	err   error
}

func NewStaticQuestionSource(batch []domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{batch: batch}
}

// NewFailingQuestionSource always fails with err.
func NewFailingQuestionSource(err error) *StaticQuestionSource {
	return &StaticQuestionSource{err: err}
}

func (s *StaticQuestionSource) RequestBatch(ctx context.Context) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Question, len(s.batch))
	copy(out, s.batch)
	return out, nil
}

// SampleBatch is a small engineering batch used when no generator is configured.
func SampleBatch() []domain.Question {
	return []domain.Question{
		{
			ID:            "sample-math-1",
			Category:      "Engineering Mathematics",
			Question:      "What is the order of the differential equation y''' + 3y' = sin(x)?",
			Options:       []string{"1", "2", "3", "4"},
			CorrectAnswer: 2,
			Explanation:   "The order is the highest derivative present, here the third derivative.",
		},
		{
			ID:            "sample-physics-1",
			Category:      "Physics",
			Question:      "In an adiabatic process, which quantity is zero?",
			Options:       []string{"Work done", "Heat exchanged", "Change in internal energy", "Pressure"},
			CorrectAnswer: 1,
			Explanation:   "Adiabatic means no heat is exchanged with the surroundings.",
		},
		{
			ID:            "sample-chem-1",
			Category:      "Chemistry",
			Question:      "Which bonding dominates in metals?",
			Options:       []string{"Ionic", "Covalent", "Metallic", "Hydrogen"},
			CorrectAnswer: 2,
			Explanation:   "Metals are held together by delocalised electrons in metallic bonding.",
		},
		{
			ID:            "sample-logic-1",
			Category:      "Mathematical Logic & Reasoning",
			Question:      "All bridges are structures. Some structures are wooden. Which follows?",
			Options:       []string{"All bridges are wooden", "Some bridges are wooden", "No conclusion about wooden bridges", "No bridges are wooden"},
			CorrectAnswer: 2,
			Explanation:   "The wooden structures need not include any bridge, so nothing follows.",
		},
		{
			ID:            "sample-general-1",
			Category:      "General Engineering Knowledge",
			Question:      "Which SI unit measures electrical capacitance?",
			Options:       []string{"Henry", "Farad", "Tesla", "Siemens"},
			CorrectAnswer: 1,
			Explanation:   "Capacitance is measured in farads.",
		},
	}
}
