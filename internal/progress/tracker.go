// Package progress tracks day-over-day reading streaks, daily-goal
// completion, elapsed reading time, and bookmarks.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"quran-companion/internal/store"
)

const (
	progressKey = "progress"
	dateFormat  = "2006-01-02"
)

// ReadingProgress is the global reading state.
type ReadingProgress struct {
	LastChapter    int    `json:"last_chapter"`
	LastUnit       int    `json:"last_unit"`
	StreakDays     int    `json:"streak_days"`
	LastActiveDate string `json:"last_active_date"`
	TotalUnitsRead int    `json:"total_units_read"`
	TodayUnitsRead int    `json:"today_units_read"`
	TodayDate      string `json:"today_date"`
}

// Snapshot is the progress state exposed to the UI layer.
type Snapshot struct {
	ReadingProgress
	DailyGoal    int  `json:"daily_goal"`
	GoalMet      bool `json:"goal_met"`
	TodayMinutes int  `json:"today_minutes"`
	WeekMinutes  int  `json:"week_minutes"`
}

// Tracker mutates reading progress on unit-level read events and derives the
// day streak. All mutations are synchronous; persistence is a side effect.
type Tracker struct {
	mu    sync.Mutex
	kv    store.KV
	log   *slog.Logger
	now   func() time.Time
	goal  int
	timer *ReadingTimer
	p     ReadingProgress
}

// NewTracker returns a Tracker with the given daily unit goal, loading any
// persisted state. timer may be nil; it only enriches snapshots.
func NewTracker(kv store.KV, log *slog.Logger, goal int, timer *ReadingTimer) *Tracker {
	t := &Tracker{kv: kv, log: log, now: time.Now, goal: goal, timer: timer}
	kv.Get(progressKey, &t.p)
	return t
}

// RecordUnitRead registers that a unit was read: updates the last-read
// position, the total and today counters, and the day streak.
func (t *Tracker) RecordUnitRead(chapter, position int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Format(dateFormat)
	if t.p.TodayDate != today {
		t.p.TodayDate = today
		t.p.TodayUnitsRead = 0
	}
	t.p.TodayUnitsRead++
	t.p.TotalUnitsRead++
	t.p.LastChapter = chapter
	t.p.LastUnit = position

	t.recordActivityLocked(today)
	t.kv.Set(progressKey, t.p)
}

// RecordActivity applies the streak rule for an activity on the given date
// (dateFormat layout): same day leaves the streak alone, exactly one day
// later increments it, any other gap resets it to one. Naturally idempotent
// within a day; callers debounce across UI events.
func (t *Tracker) RecordActivity(date string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordActivityLocked(date)
	t.kv.Set(progressKey, t.p)
}

func (t *Tracker) recordActivityLocked(date string) {
	switch t.p.LastActiveDate {
	case date:
		// Same day, streak unchanged.
	case yesterdayOf(date):
		t.p.StreakDays++
	default:
		t.p.StreakDays = 1
	}
	t.p.LastActiveDate = date
}

// Snapshot returns the progress state exposed to the UI layer.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ReadingProgress: t.p,
		DailyGoal:       t.goal,
	}
	today := t.now().Format(dateFormat)
	if t.p.TodayDate != today {
		snap.TodayUnitsRead = 0
	}
	snap.GoalMet = t.goal > 0 && snap.TodayUnitsRead >= t.goal
	if t.timer != nil {
		snap.TodayMinutes = t.timer.TodayMinutes()
		snap.WeekMinutes = t.timer.WeekMinutes()
	}
	return snap
}

// yesterdayOf returns the date one calendar day before date, in the same
// layout. A malformed date yields an empty string, which never matches.
func yesterdayOf(date string) string {
	d, err := time.Parse(dateFormat, date)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, -1).Format(dateFormat)
}
