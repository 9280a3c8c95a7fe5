package progress

import (
	"sync"
	"time"

	"quran-companion/internal/store"
)

const readingTimeKey = "reading-time"

// ReadingTimer accumulates elapsed reading seconds into a date-keyed
// counter. It is deliberately narrow: the UI layer flushes elapsed seconds
// here on its own cadence, and nothing else shares the responsibility.
type ReadingTimer struct {
	mu   sync.Mutex
	kv   store.KV
	now  func() time.Time
	data map[string]int
}

// NewReadingTimer returns a ReadingTimer, loading any persisted counters.
func NewReadingTimer(kv store.KV) *ReadingTimer {
	rt := &ReadingTimer{kv: kv, now: time.Now, data: make(map[string]int)}
	kv.Get(readingTimeKey, &rt.data)
	if rt.data == nil {
		rt.data = make(map[string]int)
	}
	return rt
}

// Add appends elapsed seconds to today's counter.
func (rt *ReadingTimer) Add(seconds int) {
	if seconds <= 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	today := rt.now().Format(dateFormat)
	rt.data[today] += seconds
	rt.kv.Set(readingTimeKey, rt.data)
}

// TodayMinutes returns whole minutes read today.
func (rt *ReadingTimer) TodayMinutes() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.data[rt.now().Format(dateFormat)] / 60
}

// WeekMinutes returns whole minutes read over the last seven days,
// including today.
func (rt *ReadingTimer) WeekMinutes() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	total := 0
	day := rt.now()
	for i := 0; i < 7; i++ {
		total += rt.data[day.AddDate(0, 0, -i).Format(dateFormat)]
	}
	return total / 60
}
