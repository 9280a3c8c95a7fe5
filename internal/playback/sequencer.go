package playback

import (
	"log/slog"
	"sync"
	"time"

	"quran-companion/internal/platform/metrics"
	"quran-companion/internal/quran"
)

// Sequencer drives ordered playback of one clip per unit. All mutation goes
// through its methods; asynchronous clip events re-enter through callbacks
// that carry the generation token captured at load time, so events from a
// superseded clip are discarded instead of resurrecting playback.
type Sequencer struct {
	mu sync.Mutex

	player  Player
	clipURL func(reciterID string, globalPosition int) string
	log     *slog.Logger
	metrics *metrics.Metrics // may be nil
	notify  func(Notice)     // may be nil; invoked outside the lock
	now     func() time.Time

	// token is bumped on every teardown; stale callbacks compare against it.
	token uint64

	reciter  string
	sequence []quran.Unit
	cursor   int
	anchor   int // starting index of the current PlayFrom invocation
	state    State
	speed    float64
	repeat   RepeatMode

	// Resolved repeat-range indices, cached per PlayFrom/SetRepeatMode.
	// -1 means the bound does not resolve in the current sequence.
	rangeStart int
	rangeEnd   int

	errCount      int
	errorNotice   bool
	sleepDeadline time.Time
	clip          Clip
}

// NewSequencer returns an idle Sequencer. clipURL maps a reciter and global
// verse position to a clip URL; m may be nil to disable metrics.
func NewSequencer(player Player, clipURL func(string, int) string, log *slog.Logger, m *metrics.Metrics) *Sequencer {
	return &Sequencer{
		player:     player,
		clipURL:    clipURL,
		log:        log,
		metrics:    m,
		now:        time.Now,
		reciter:    quran.DefaultReciterID,
		cursor:     -1,
		state:      StateIdle,
		speed:      1,
		rangeStart: -1,
		rangeEnd:   -1,
	}
}

// SetNotifier registers the callback for user-visible playback events.
// Must be called before playback starts.
func (s *Sequencer) SetNotifier(fn func(Notice)) {
	s.notify = fn
}

// PlayFrom starts a new session playing sequence from startIndex, tearing
// down any session in progress. An empty sequence or out-of-range index
// fails silently into Stopped. The sleep timer, speed, and repeat mode
// survive across invocations.
func (s *Sequencer) PlayFrom(sequence []quran.Unit, startIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.errCount = 0
	s.errorNotice = false

	if len(sequence) == 0 || startIndex < 0 || startIndex >= len(sequence) {
		s.sequence = nil
		s.cursor = -1
		s.state = StateStopped
		return
	}

	// Copy so the session's sequence cannot mutate under an active range
	// resolution or cursor.
	s.sequence = make([]quran.Unit, len(sequence))
	copy(s.sequence, sequence)
	s.anchor = startIndex
	s.resolveRangeLocked()
	s.loadLocked(startIndex)
}

// TogglePlayPause flips the playback state of the active clip. No-op when no
// clip is loaded. Resuming re-applies the current speed.
func (s *Sequencer) TogglePlayPause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clip == nil {
		return
	}
	switch s.state {
	case StatePlaying:
		s.clip.Pause()
		s.state = StatePaused
	case StatePaused:
		s.clip.SetRate(s.speed)
		s.clip.Play()
		s.state = StatePlaying
	}
}

// Stop cancels any pending load, releases the audio resource, clears the
// sleep timer, and resets to Idle. Idempotent.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(StateIdle)
}

// Seek moves the active clip to the given offset, clamped to the clip
// bounds. No-op when no clip is loaded.
func (s *Sequencer) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clip == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	s.clip.Seek(seconds)
}

// SkipNext advances the cursor by one, clamped to the sequence bounds.
// Only valid while playing; the session stays live across the reload.
func (s *Sequencer) SkipNext() { s.skip(1) }

// SkipPrev moves the cursor back by one, clamped to the sequence bounds.
func (s *Sequencer) SkipPrev() { s.skip(-1) }

func (s *Sequencer) skip(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return
	}
	next := s.cursor + delta
	if next < 0 {
		next = 0
	}
	if next > len(s.sequence)-1 {
		next = len(s.sequence) - 1
	}
	if next == s.cursor {
		return
	}
	s.teardownLocked()
	s.loadLocked(next)
}

// SetSpeed applies a playback rate to the active clip and keeps it as the
// default for subsequent clips. Unsupported rates are ignored.
func (s *Sequencer) SetSpeed(speed float64) {
	if !ValidSpeed(speed) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.speed = speed
	if s.clip != nil {
		s.clip.SetRate(speed)
	}
}

// SetRepeatMode sets the repeat policy. It takes effect at the next
// end-of-clip boundary; range bounds are resolved against the current
// sequence now and cached.
func (s *Sequencer) SetRepeatMode(mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeat = mode
	s.resolveRangeLocked()
}

// SetSleepTimer arms the countdown; when it elapses the session is force
// stopped regardless of playback state.
func (s *Sequencer) SetSleepTimer(minutes int) {
	if minutes <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleepDeadline = s.now().Add(time.Duration(minutes) * time.Minute)
}

// ClearSleepTimer cancels the countdown.
func (s *Sequencer) ClearSleepTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleepDeadline = time.Time{}
}

// Tick drives the sleep timer. It runs on a periodic external tick,
// independent of playback state, and funnels through the same stop path as
// every other teardown.
func (s *Sequencer) Tick() {
	s.mu.Lock()
	var notice *Notice
	if !s.sleepDeadline.IsZero() && !s.now().Before(s.sleepDeadline) {
		s.stopLocked(StateStopped)
		notice = &Notice{Code: NoticeSleepTimerDone, Message: "sleep timer elapsed, playback stopped"}
	}
	s.mu.Unlock()

	s.emit(notice)
}

// SetReciter selects the audio voice-track source. A reciter change during
// an active session is a hard interrupt: the session stops and the caller
// must restart playback explicitly.
func (s *Sequencer) SetReciter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.reciter {
		return
	}
	switch s.state {
	case StateLoading, StatePlaying, StatePaused:
		s.stopLocked(StateStopped)
	}
	s.reciter = id
}

// Reciter returns the selected reciter ID.
func (s *Sequencer) Reciter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reciter
}

// Snapshot returns the state exposed to the UI layer.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state.String(),
		Reciter:        s.reciter,
		Cursor:         s.cursor,
		SequenceLength: len(s.sequence),
		Speed:          s.speed,
		Repeat:         s.repeat.Kind.String(),
		ErrorNotice:    s.errorNotice,
	}
	if s.clip != nil {
		snap.Elapsed, snap.Total = s.clip.Position()
	}
	if s.cursor >= 0 && s.cursor < len(s.sequence) {
		u := s.sequence[s.cursor]
		snap.Current = &u
	}
	if !s.sleepDeadline.IsZero() {
		if rem := s.sleepDeadline.Sub(s.now()).Seconds(); rem > 0 {
			snap.SleepRemaining = rem
		}
	}
	return snap
}

// Active reports whether a session is loading, playing, or paused.
func (s *Sequencer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateLoading, StatePlaying, StatePaused:
		return true
	}
	return false
}

// loadLocked starts loading the clip at index. Caller holds s.mu and has
// already torn down any previous clip.
func (s *Sequencer) loadLocked(index int) {
	s.cursor = index
	s.state = StateLoading

	unit := s.sequence[index]
	url := s.clipURL(s.reciter, unit.GlobalPosition)

	tok := s.token
	s.clip = s.player.Load(url, Callbacks{
		OnReady: func(total float64) { s.clipReady(tok) },
		OnEnded: func() { s.clipEnded(tok) },
		OnError: func(err error) { s.clipError(tok, err) },
	})
}

func (s *Sequencer) clipReady(tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok != s.token || s.clip == nil {
		return
	}
	s.errCount = 0
	s.clip.SetRate(s.speed)
	s.clip.Play()
	if s.state == StateLoading {
		s.state = StatePlaying
	}
	if s.metrics != nil {
		s.metrics.IncClipsStarted()
	}
}

func (s *Sequencer) clipEnded(tok uint64) {
	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		return
	}
	s.advanceLocked()
	s.mu.Unlock()
}

func (s *Sequencer) clipError(tok uint64, err error) {
	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		return
	}

	if s.metrics != nil {
		s.metrics.IncClipErrors()
	}
	s.errCount++
	s.log.Debug("clip failed",
		slog.Int("cursor", s.cursor),
		slog.Int("consecutive", s.errCount),
		slog.String("error", err.Error()))

	var notice *Notice
	if s.errCount >= maxConsecutiveErrors {
		// A fully broken voice-set would otherwise skip silently forever.
		s.errCount = 0
		s.errorNotice = true
		s.stopLocked(StateStopped)
		notice = &Notice{Code: NoticePlaybackFailed, Message: "playback failed, try another reciter"}
	} else {
		s.advanceLocked()
	}
	s.mu.Unlock()

	s.emit(notice)
}

// advanceLocked is the end-of-clip transition, shared by natural completion
// and the silent-skip error path. Caller holds s.mu.
func (s *Sequencer) advanceLocked() {
	s.teardownLocked()

	// A single-unit loop replays the invocation's starting index at every
	// boundary, independent of cursor drift from skips.
	if s.repeat.Kind == RepeatUnit {
		s.loadLocked(s.anchor)
		return
	}

	if s.repeat.Kind == RepeatRange && s.cursor == s.rangeEnd {
		if s.rangeStart >= 0 {
			s.loadLocked(s.rangeStart)
			return
		}
	}

	next := s.cursor + 1
	if next < len(s.sequence) {
		s.loadLocked(next)
		return
	}

	switch s.repeat.Kind {
	case RepeatSequence:
		s.loadLocked(0)
	case RepeatRange:
		if s.rangeStart >= 0 && s.rangeEnd >= 0 {
			s.loadLocked(s.rangeStart)
			return
		}
		// Configuration inconsistent: report, do not guess a range.
		s.log.Warn("repeat range does not resolve in the current sequence",
			slog.Int("start", s.repeat.Start),
			slog.Int("end", s.repeat.End))
		s.stopLocked(StateStopped)
	default:
		s.stopLocked(StateStopped)
	}
}

// teardownLocked cancels the in-flight clip and invalidates its callbacks.
// It does not touch the sleep timer or session bookkeeping.
func (s *Sequencer) teardownLocked() {
	s.token++
	if s.clip != nil {
		s.clip.Close()
		s.clip = nil
	}
}

// stopLocked is the single teardown path for every way a session ends.
func (s *Sequencer) stopLocked(final State) {
	active := s.state == StateLoading || s.state == StatePlaying || s.state == StatePaused
	s.teardownLocked()
	s.sequence = nil
	s.cursor = -1
	s.sleepDeadline = time.Time{}
	s.state = final
	if active && s.metrics != nil {
		s.metrics.IncPlaybackStops()
	}
}

// resolveRangeLocked caches the sequence indices of the repeat-range bounds.
// Caller holds s.mu.
func (s *Sequencer) resolveRangeLocked() {
	s.rangeStart, s.rangeEnd = -1, -1
	if s.repeat.Kind != RepeatRange {
		return
	}
	for i, u := range s.sequence {
		if u.GlobalPosition == s.repeat.Start {
			s.rangeStart = i
		}
		if u.GlobalPosition == s.repeat.End {
			s.rangeEnd = i
		}
	}
	if s.rangeStart > s.rangeEnd {
		s.rangeStart, s.rangeEnd = -1, -1
	}
}

func (s *Sequencer) emit(n *Notice) {
	if n != nil && s.notify != nil {
		s.notify(*n)
	}
}
