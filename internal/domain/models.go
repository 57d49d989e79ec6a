package domain

import "time"

// SessionState is the lifecycle position of a quiz controller.
type SessionState string

const (
	StateIdle     SessionState = "IDLE"
	StateLoading  SessionState = "LOADING"
	StateActive   SessionState = "ACTIVE"
	StateFinished SessionState = "FINISHED"
	// StateMonitor is the leaderboard view; it sits beside IDLE and never scores.
	StateMonitor SessionState = "MONITOR"
)

// AnswerSet maps question id to the selected option index.
type AnswerSet map[string]int

// Clone returns an independent copy of a.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Grade buckets a percentage for the results screen.
type Grade string

const (
	GradeExcellent Grade = "EXCELLENT"
	GradeQualified Grade = "QUALIFIED"
	GradeNeedsWork Grade = "NEEDS WORK"
)

// Result is the immutable snapshot taken when a session finishes.
type Result struct {
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percentage float64       `json:"percentage"`
	Grade      Grade         `json:"grade"`
	Answers    AnswerSet     `json:"answers"`
	Questions  []Question    `json:"questions"`
	Elapsed    time.Duration `json:"elapsed"`
	Declared   time.Duration `json:"declared"`
	Identity   string        `json:"identity,omitempty"`
	TimedOut   bool          `json:"timedOut"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// AttemptRecord is the persisted summary of one finished session.
type AttemptRecord struct {
	ID         string    `json:"id"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	Identity   string    `json:"identity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimerView is the countdown as shown to a participant.
type TimerView struct {
	SecondsLeft int  `json:"secondsLeft"`
	Warning     bool `json:"warning"`
	Expired     bool `json:"expired"`
}

// SessionView is a read-only snapshot of a controller pushed to clients.
type SessionView struct {
	State       SessionState  `json:"state"`
	Identity    string        `json:"identity,omitempty"`
	Position    int           `json:"position"`
	Total       int           `json:"total"`
	Question    *QuestionView `json:"question,omitempty"`
	Answers     AnswerSet     `json:"answers,omitempty"`
	Timer       *TimerView    `json:"timer,omitempty"`
	Saving      bool          `json:"saving"`
	SaveWarning string        `json:"saveWarning,omitempty"`
	Error       string        `json:"error,omitempty"`
	Result      *Result       `json:"result,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
