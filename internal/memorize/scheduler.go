package memorize

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quran-companion/internal/platform/metrics"
	"quran-companion/internal/quran"
	"quran-companion/internal/store"
)

// Scheduler decides which units are due for spaced review and applies every
// learner interaction. It is the only mutation path for memorization state,
// which keeps the mastered-implies-memorized and streak/mastery invariants
// intact on every write. State is persisted to the KV store after each
// mutation as a plain side effect.
type Scheduler struct {
	mu      sync.Mutex
	kv      store.KV
	log     *slog.Logger
	metrics *metrics.Metrics // may be nil
	now     func() time.Time

	data    schedulerData
	current *Session
}

type schedulerData struct {
	Chapters map[int]*ChapterRecord `json:"chapters"`
	Sessions []Session              `json:"sessions"`
}

// NewScheduler returns a Scheduler backed by kv, loading any persisted state.
func NewScheduler(kv store.KV, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		kv:      kv,
		log:     log,
		metrics: m,
		now:     time.Now,
		data:    schedulerData{Chapters: make(map[int]*ChapterRecord)},
	}
	if kv.Get(storeKey, &s.data) && s.data.Chapters == nil {
		s.data.Chapters = make(map[int]*ChapterRecord)
	}
	return s
}

// MarkMemorized records a unit as memorized for the first time: it joins the
// review queue with a streak of one and a fresh review stamp. Calling it
// again for the same unit is a no-op.
func (s *Scheduler) MarkMemorized(chapter, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.unitLocked(chapter, position)
	if u.Memorized {
		return
	}
	u.Memorized = true
	u.InQueue = true
	u.Streak++
	u.LastReviewedAt = s.now()
	s.persistLocked()

	if s.metrics != nil {
		s.metrics.IncUnitsMemorized()
	}
	s.log.Debug("unit memorized", slog.Int("chapter", chapter), slog.Int("position", position))
}

// MarkForReview manually flags a unit for re-practice. Unlike a scored
// review it touches neither the streak nor the review stamp. Idempotent.
func (s *Scheduler) MarkForReview(chapter, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.unitLocked(chapter, position)
	if u.InQueue {
		return
	}
	u.InQueue = true
	s.persistLocked()
}

// RecordReview applies a scored review outcome. A correct review extends the
// streak and promotes to mastered at three; an incorrect one resets the
// streak, revokes mastery, and keeps the unit queued. Either way the review
// stamp moves to now and the active session's counters advance.
func (s *Scheduler) RecordReview(chapter, position int, wasCorrect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.unitLocked(chapter, position)
	// Reviewing implies the unit was learned; keeps mastered ⊆ memorized.
	u.Memorized = true

	if wasCorrect {
		u.Streak++
		u.InQueue = false
	} else {
		u.Streak = 0
		u.InQueue = true
	}
	u.Mastered = u.Streak >= masteryStreak
	u.LastReviewedAt = s.now()

	if s.current != nil {
		s.current.UnitsReviewed++
		if wasCorrect {
			s.current.UnitsCorrect++
		}
	}
	s.persistLocked()

	if s.metrics != nil {
		s.metrics.IncReviewsRecorded()
	}
}

// DueUnits returns every unit due for review today: queued units, units
// whose streak-indexed interval has elapsed, and mastered units past the
// flat check-in cadence. chapter 0 means all chapters. No ordering beyond
// chapter then position is guaranteed.
func (s *Scheduler) DueUnits(chapter int) []UnitRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueLocked(chapter)
}

func (s *Scheduler) dueLocked(chapter int) []UnitRef {
	today := s.now()

	chapters := make([]int, 0, len(s.data.Chapters))
	for n := range s.data.Chapters {
		if chapter == 0 || n == chapter {
			chapters = append(chapters, n)
		}
	}
	sort.Ints(chapters)

	var due []UnitRef
	for _, n := range chapters {
		rec := s.data.Chapters[n]
		positions := make([]int, 0, len(rec.Units))
		for p := range rec.Units {
			positions = append(positions, p)
		}
		sort.Ints(positions)

		for _, p := range positions {
			if s.unitDue(rec.Units[p], today) {
				due = append(due, UnitRef{Chapter: n, Position: p})
			}
		}
	}
	return due
}

func (s *Scheduler) unitDue(u *UnitState, today time.Time) bool {
	if u.InQueue {
		return true
	}
	if u.LastReviewedAt.IsZero() {
		// Memorized but never reviewed: immediately due.
		return u.Memorized
	}
	days := daysBetween(u.LastReviewedAt, today)
	if u.Mastered {
		return days >= masteredReviewDays
	}
	idx := u.Streak
	if idx > len(ReviewIntervals)-1 {
		idx = len(ReviewIntervals) - 1
	}
	return days >= ReviewIntervals[idx]
}

// MemorizedCount returns the number of memorized units in a chapter.
func (s *Scheduler) MemorizedCount(chapter int) int {
	return s.count(chapter, func(u *UnitState) bool { return u.Memorized })
}

// MasteredCount returns the number of mastered units in a chapter.
func (s *Scheduler) MasteredCount(chapter int) int {
	return s.count(chapter, func(u *UnitState) bool { return u.Mastered })
}

func (s *Scheduler) count(chapter int, match func(*UnitState) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Chapters[chapter]
	if !ok {
		return 0
	}
	n := 0
	for _, u := range rec.Units {
		if match(u) {
			n++
		}
	}
	return n
}

// ChapterProgress returns a copy of the chapter record, or nil if the
// chapter has never been touched.
func (s *Scheduler) ChapterProgress(chapter int) *ChapterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Chapters[chapter]
	if !ok {
		return nil
	}
	out := &ChapterRecord{
		ChapterNumber: rec.ChapterNumber,
		TotalUnits:    rec.TotalUnits,
		Units:         make(map[int]*UnitState, len(rec.Units)),
	}
	for p, u := range rec.Units {
		cp := *u
		out.Units[p] = &cp
	}
	return out
}

// StartSession begins a review sitting, replacing any session in progress.
func (s *Scheduler) StartSession(chapter int, mode SessionMode) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		ID:        uuid.NewString(),
		Chapter:   chapter,
		StartedAt: s.now(),
		Mode:      mode,
	}
	s.current = &sess
	return sess
}

// EndSession closes the active session and appends it to the bounded
// history. Reports false when no session is active.
func (s *Scheduler) EndSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}
	sess := *s.current
	s.current = nil

	s.data.Sessions = append(s.data.Sessions, sess)
	if len(s.data.Sessions) > sessionHistoryLimit {
		s.data.Sessions = s.data.Sessions[len(s.data.Sessions)-sessionHistoryLimit:]
	}
	s.persistLocked()
	return sess, true
}

// CurrentSession returns the active session, if any.
func (s *Scheduler) CurrentSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// RecentSessions returns up to n most recent ended sessions, newest first.
func (s *Scheduler) RecentSessions(n int) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.data.Sessions
	if n > len(hist) {
		n = len(hist)
	}
	out := make([]Session, 0, n)
	for i := len(hist) - 1; i >= len(hist)-n; i-- {
		out = append(out, hist[i])
	}
	return out
}

// OverallStats returns the cross-chapter rollup.
func (s *Scheduler) OverallStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalSessions: len(s.data.Sessions)}
	for _, rec := range s.data.Chapters {
		for _, u := range rec.Units {
			if u.Memorized {
				st.TotalMemorized++
			}
			if u.Mastered {
				st.TotalMastered++
			}
		}
	}
	st.DueCount = len(s.dueLocked(0))
	return st
}

// unitLocked returns the state record for a unit, creating the chapter
// record and unit entry lazily. Caller holds s.mu.
func (s *Scheduler) unitLocked(chapter, position int) *UnitState {
	rec, ok := s.data.Chapters[chapter]
	if !ok {
		rec = &ChapterRecord{
			ChapterNumber: chapter,
			TotalUnits:    quran.UnitsInChapter(chapter),
			Units:         make(map[int]*UnitState),
		}
		s.data.Chapters[chapter] = rec
	}
	u, ok := rec.Units[position]
	if !ok {
		u = &UnitState{}
		rec.Units[position] = u
	}
	return u
}

func (s *Scheduler) persistLocked() {
	s.kv.Set(storeKey, s.data)
}

// daysBetween returns the number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location())
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	return int(bd.Sub(ad).Hours() / 24)
}
