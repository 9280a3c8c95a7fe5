// Package memorize implements the spaced-repetition scheduler: per-unit
// memorization state, streak-indexed review intervals, and review sessions.
package memorize

import "time"

// ReviewIntervals is the days-until-next-review table, indexed by the
// current streak and clamped to its length.
var ReviewIntervals = []int{1, 3, 7, 14, 30}

const (
	// masteryStreak is the consecutive-correct count at which a unit is
	// considered mastered.
	masteryStreak = 3

	// masteredReviewDays is the flat check-in cadence for mastered units,
	// replacing the interval table.
	masteredReviewDays = 7

	// sessionHistoryLimit bounds the retained session history.
	sessionHistoryLimit = 50

	storeKey = "memorization"
)

// UnitState is the complete spaced-repetition record for one unit position.
// Keeping streak, mastery, queue membership, and the review timestamp in one
// struct keeps them in agreement by construction.
type UnitState struct {
	Memorized      bool      `json:"memorized"`
	Mastered       bool      `json:"mastered"`
	InQueue        bool      `json:"in_queue"`
	Streak         int       `json:"streak"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
}

// ChapterRecord tracks memorization state for one chapter. Created lazily on
// first interaction, never destroyed.
type ChapterRecord struct {
	ChapterNumber int                `json:"chapter"`
	TotalUnits    int                `json:"total_units"`
	Units         map[int]*UnitState `json:"units"`
}

// UnitRef addresses one unit in the due list.
type UnitRef struct {
	Chapter  int `json:"chapter"`
	Position int `json:"position"`
}

// SessionMode is the kind of review session.
type SessionMode string

const (
	ModeLearn  SessionMode = "learn"
	ModeReview SessionMode = "review"
	ModeTest   SessionMode = "test"
)

// Session is one memorization sitting. The last sessionHistoryLimit ended
// sessions are retained.
type Session struct {
	ID            string      `json:"id"`
	Chapter       int         `json:"chapter"`
	StartedAt     time.Time   `json:"started_at"`
	UnitsReviewed int         `json:"units_reviewed"`
	UnitsCorrect  int         `json:"units_correct"`
	Mode          SessionMode `json:"mode"`
}

// Stats is the cross-chapter rollup exposed to the UI layer.
type Stats struct {
	TotalMemorized int `json:"total_memorized"`
	TotalMastered  int `json:"total_mastered"`
	TotalSessions  int `json:"total_sessions"`
	DueCount       int `json:"due_count"`
}
