package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"quran-companion/internal/quran"
)

type fakeClip struct {
	total    float64
	rate     float64
	position float64
	playing  bool
	closed   bool
	plays    int
}

func (c *fakeClip) Play()                { c.playing = true; c.plays++ }
func (c *fakeClip) Pause()               { c.playing = false }
func (c *fakeClip) SetRate(rate float64) { c.rate = rate }
func (c *fakeClip) Close()               { c.closed = true; c.playing = false }

func (c *fakeClip) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	if seconds > c.total {
		seconds = c.total
	}
	c.position = seconds
}

func (c *fakeClip) Position() (float64, float64) { return c.position, c.total }

type clipLoad struct {
	url  string
	clip *fakeClip
	cb   Callbacks
}

func (l *clipLoad) ready() { l.cb.OnReady(l.clip.total) }
func (l *clipLoad) end()   { l.cb.OnEnded() }
func (l *clipLoad) fail()  { l.cb.OnError(errors.New("clip failed")) }

// fakePlayer records every load and lets tests fire clip events manually,
// so event delivery is always after Load returns, as the Player contract
// requires.
type fakePlayer struct {
	loads []*clipLoad
}

func (p *fakePlayer) Load(url string, cb Callbacks) Clip {
	c := &fakeClip{total: 10}
	p.loads = append(p.loads, &clipLoad{url: url, clip: c, cb: cb})
	return c
}

func (p *fakePlayer) last() *clipLoad { return p.loads[len(p.loads)-1] }

func testUnits(n int) []quran.Unit {
	units := make([]quran.Unit, n)
	for i := range units {
		units[i] = quran.Unit{
			ChapterNumber:     1,
			PositionInChapter: i + 1,
			GlobalPosition:    100 + i,
		}
	}
	return units
}

func newTestSequencer() (*Sequencer, *fakePlayer) {
	player := &fakePlayer{}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	clipURL := func(reciter string, global int) string {
		return fmt.Sprintf("clip://%s/%d", reciter, global)
	}
	return NewSequencer(player, clipURL, log, nil), player
}

func TestPlayFrom_then_stop(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	if got := seq.Snapshot().State; got != "loading" {
		t.Fatalf("state after PlayFrom = %s, want loading", got)
	}

	seq.Stop()
	if got := seq.Snapshot().State; got != "idle" {
		t.Errorf("state after Stop = %s, want idle", got)
	}
	if !player.loads[0].clip.closed {
		t.Error("clip not released on Stop")
	}
}

func TestStop_idempotent(t *testing.T) {
	seq, _ := newTestSequencer()
	seq.Stop()
	seq.Stop()
	if got := seq.Snapshot().State; got != "idle" {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestPlayFrom_invalid_input(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(nil, 0)
	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("empty sequence: state = %s, want stopped", got)
	}

	seq.PlayFrom(testUnits(3), 5)
	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("out-of-range index: state = %s, want stopped", got)
	}
	if len(player.loads) != 0 {
		t.Errorf("expected no loads, got %d", len(player.loads))
	}
}

func TestStaleCallback_discarded_after_stop(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	superseded := player.last()
	seq.Stop()

	// A late-arriving ready event from the superseded clip must not
	// resurrect playback.
	superseded.ready()
	if got := seq.Snapshot().State; got != "idle" {
		t.Errorf("state after stale ready = %s, want idle", got)
	}
	if len(player.loads) != 1 {
		t.Errorf("stale callback triggered a load, loads = %d", len(player.loads))
	}
}

func TestSequentialAdvance_to_natural_end(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	for i := 0; i < 3; i++ {
		player.last().ready()
		if got := seq.Snapshot().State; got != "playing" {
			t.Fatalf("clip %d: state = %s, want playing", i, got)
		}
		player.last().end()
	}

	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("state after last clip = %s, want stopped", got)
	}
	want := []string{"clip://ar.alafasy/100", "clip://ar.alafasy/101", "clip://ar.alafasy/102"}
	if len(player.loads) != len(want) {
		t.Fatalf("loads = %d, want %d", len(player.loads), len(want))
	}
	for i, l := range player.loads {
		if l.url != want[i] {
			t.Errorf("load %d = %s, want %s", i, l.url, want[i])
		}
	}
}

func TestRepeatSequence_two_full_cycles(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	seq.SetRepeatMode(RepeatMode{Kind: RepeatSequence})

	var order []int
	for cycle := 0; cycle < 2; cycle++ {
		for i := 0; i < 3; i++ {
			order = append(order, seq.Snapshot().Cursor)
			player.last().ready()
			player.last().end()
		}
	}

	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cursor order = %v, want %v", order, want)
		}
	}
	if got := seq.Snapshot().State; got != "loading" && got != "playing" {
		t.Errorf("state after two cycles = %s, want still active", got)
	}
	if got := seq.Snapshot().Cursor; got != 0 {
		t.Errorf("cursor after two cycles = %d, want 0", got)
	}
}

func TestRepeatUnit_replays_anchor(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(5), 2)
	seq.SetRepeatMode(RepeatMode{Kind: RepeatUnit})

	for i := 0; i < 3; i++ {
		player.last().ready()
		player.last().end()
		if got := seq.Snapshot().Cursor; got != 2 {
			t.Fatalf("cycle %d: cursor = %d, want anchor 2", i, got)
		}
	}
}

func TestRepeatUnit_anchor_survives_skips(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(5), 2)
	seq.SetRepeatMode(RepeatMode{Kind: RepeatUnit})
	player.last().ready()

	seq.SkipNext()
	player.last().ready()
	if got := seq.Snapshot().Cursor; got != 3 {
		t.Fatalf("cursor after skip = %d, want 3", got)
	}

	// End-of-clip returns to the invocation's starting index, not the
	// drifted cursor.
	player.last().end()
	if got := seq.Snapshot().Cursor; got != 2 {
		t.Errorf("cursor after end = %d, want anchor 2", got)
	}
}

func TestRepeatRange_loops_between_bounds(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(5), 1) // globals 100..104
	seq.SetRepeatMode(RepeatMode{Kind: RepeatRange, Start: 101, End: 103})

	// 1 -> 2 -> 3, then back to 1.
	for i := 0; i < 3; i++ {
		player.last().ready()
		player.last().end()
	}
	if got := seq.Snapshot().Cursor; got != 1 {
		t.Errorf("cursor after range end = %d, want 1", got)
	}
}

func TestRepeatRange_unresolvable_stops(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	seq.SetRepeatMode(RepeatMode{Kind: RepeatRange, Start: 900, End: 901})

	for i := 0; i < 3; i++ {
		player.last().ready()
		player.last().end()
	}
	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("state = %s, want stopped (no guessed range)", got)
	}
}

func TestErrorPolicy_three_strikes(t *testing.T) {
	seq, player := newTestSequencer()
	var notices []Notice
	seq.SetNotifier(func(n Notice) { notices = append(notices, n) })

	seq.PlayFrom(testUnits(10), 0)
	player.last().fail()
	player.last().fail()
	if len(notices) != 0 {
		t.Fatalf("notice before third failure: %v", notices)
	}
	if got := seq.Snapshot().Cursor; got != 2 {
		t.Fatalf("cursor after two silent skips = %d, want 2", got)
	}

	player.last().fail()
	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("state after third failure = %s, want stopped", got)
	}
	if len(notices) != 1 || notices[0].Code != NoticePlaybackFailed {
		t.Errorf("notices = %v, want one %s", notices, NoticePlaybackFailed)
	}
	if !seq.Snapshot().ErrorNotice {
		t.Error("error flag not set in snapshot")
	}
	if seq.errCount != 0 {
		t.Errorf("error counter = %d, want reset to 0", seq.errCount)
	}
}

func TestErrorPolicy_success_resets_counter(t *testing.T) {
	seq, player := newTestSequencer()
	var notices []Notice
	seq.SetNotifier(func(n Notice) { notices = append(notices, n) })

	seq.PlayFrom(testUnits(10), 0)
	player.last().fail()
	player.last().fail()
	player.last().ready() // success on the third clip

	if seq.errCount != 0 {
		t.Errorf("error counter = %d, want 0 after success", seq.errCount)
	}
	if len(notices) != 0 {
		t.Errorf("no notice expected for two failures then success, got %v", notices)
	}

	// The bound is consecutive, so two fresh failures stay silent.
	player.last().end()
	player.last().fail()
	player.last().fail()
	if len(notices) != 0 {
		t.Errorf("counter leaked across a success: %v", notices)
	}
}

func TestSkip_scenario(t *testing.T) {
	seq, player := newTestSequencer()

	// Play from index 2, skip forward twice, back once: 2 -> 3 -> 4 -> 3.
	seq.PlayFrom(testUnits(5), 2)
	player.last().ready()
	seq.SkipNext()
	player.last().ready()
	seq.SkipNext()
	player.last().ready()
	seq.SkipPrev()
	player.last().ready()

	if got := seq.Snapshot().Cursor; got != 3 {
		t.Errorf("final cursor = %d, want 3", got)
	}
	if got := seq.Snapshot().State; got != "playing" {
		t.Errorf("state = %s, want playing", got)
	}
}

func TestSkip_clamped_at_bounds(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(2), 1)
	player.last().ready()

	seq.SkipNext() // already at the last unit
	if got := len(player.loads); got != 1 {
		t.Errorf("clamped skip reloaded, loads = %d", got)
	}
	if got := seq.Snapshot().Cursor; got != 1 {
		t.Errorf("cursor = %d, want 1", got)
	}
}

func TestSkip_invalid_while_not_playing(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0) // still loading
	seq.SkipNext()
	if got := seq.Snapshot().Cursor; got != 0 {
		t.Errorf("skip during load moved cursor to %d", got)
	}
	_ = player
}

func TestTogglePlayPause(t *testing.T) {
	seq, player := newTestSequencer()

	seq.TogglePlayPause() // no active clip: no-op
	if got := seq.Snapshot().State; got != "idle" {
		t.Fatalf("toggle with no clip: state = %s, want idle", got)
	}

	seq.PlayFrom(testUnits(3), 0)
	player.last().ready()
	seq.SetSpeed(1.5)

	seq.TogglePlayPause()
	if got := seq.Snapshot().State; got != "paused" {
		t.Errorf("state = %s, want paused", got)
	}
	seq.TogglePlayPause()
	if got := seq.Snapshot().State; got != "playing" {
		t.Errorf("state = %s, want playing", got)
	}
	if got := player.last().clip.rate; got != 1.5 {
		t.Errorf("resume did not re-apply speed, rate = %v", got)
	}
}

func TestSetSpeed(t *testing.T) {
	seq, player := newTestSequencer()

	seq.SetSpeed(2.0) // unsupported
	if seq.Snapshot().Speed != 1 {
		t.Errorf("unsupported speed accepted")
	}

	seq.PlayFrom(testUnits(2), 0)
	player.last().ready()
	seq.SetSpeed(0.75)
	if got := player.last().clip.rate; got != 0.75 {
		t.Errorf("active clip rate = %v, want 0.75", got)
	}

	// Persisted as the session default for the next clip.
	player.last().end()
	player.last().ready()
	if got := player.last().clip.rate; got != 0.75 {
		t.Errorf("next clip rate = %v, want 0.75", got)
	}
}

func TestSeek_clamps(t *testing.T) {
	seq, player := newTestSequencer()

	seq.Seek(5) // no clip: no-op

	seq.PlayFrom(testUnits(1), 0)
	player.last().ready()

	seq.Seek(50)
	if got, _ := player.last().clip.Position(); got != 10 {
		t.Errorf("seek past end = %v, want clamp to 10", got)
	}
	seq.Seek(-3)
	if got, _ := player.last().clip.Position(); got != 0 {
		t.Errorf("negative seek = %v, want clamp to 0", got)
	}
}

func TestSleepTimer_forces_stop(t *testing.T) {
	seq, player := newTestSequencer()
	var notices []Notice
	seq.SetNotifier(func(n Notice) { notices = append(notices, n) })

	base := time.Now()
	seq.now = func() time.Time { return base }

	seq.PlayFrom(testUnits(3), 0)
	player.last().ready()
	seq.SetSleepTimer(1)

	seq.Tick()
	if got := seq.Snapshot().State; got != "playing" {
		t.Fatalf("state before deadline = %s, want playing", got)
	}

	seq.now = func() time.Time { return base.Add(61 * time.Second) }
	seq.Tick()

	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("state after deadline = %s, want stopped", got)
	}
	if !seq.sleepDeadline.IsZero() {
		t.Error("sleep deadline not cleared")
	}
	if len(notices) != 1 || notices[0].Code != NoticeSleepTimerDone {
		t.Errorf("notices = %v, want one %s", notices, NoticeSleepTimerDone)
	}
}

func TestClearSleepTimer(t *testing.T) {
	seq, _ := newTestSequencer()

	base := time.Now()
	seq.now = func() time.Time { return base }
	seq.SetSleepTimer(1)
	seq.ClearSleepTimer()

	seq.now = func() time.Time { return base.Add(2 * time.Minute) }
	seq.Tick()
	if got := seq.Snapshot().State; got != "idle" {
		t.Errorf("cleared timer still fired, state = %s", got)
	}
}

func TestStop_clears_sleep_timer(t *testing.T) {
	seq, _ := newTestSequencer()
	seq.SetSleepTimer(5)
	seq.Stop()
	if !seq.sleepDeadline.IsZero() {
		t.Error("Stop did not clear the sleep deadline")
	}
}

func TestSetReciter_hard_interrupt(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	player.last().ready()

	seq.SetReciter("ar.husary")
	if got := seq.Snapshot().State; got != "stopped" {
		t.Errorf("state after reciter change = %s, want stopped", got)
	}
	if !player.last().clip.closed {
		t.Error("clip not released on reciter change")
	}

	// The caller restarts explicitly; new clips use the new voice.
	seq.PlayFrom(testUnits(1), 0)
	if got := player.last().url; got != "clip://ar.husary/100" {
		t.Errorf("clip URL = %s, want new reciter", got)
	}
}

func TestSetReciter_same_id_keeps_playing(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 0)
	player.last().ready()
	seq.SetReciter("ar.alafasy")
	if got := seq.Snapshot().State; got != "playing" {
		t.Errorf("same reciter interrupted playback, state = %s", got)
	}
}

func TestSnapshot_current_unit(t *testing.T) {
	seq, player := newTestSequencer()

	seq.PlayFrom(testUnits(3), 1)
	player.last().ready()

	snap := seq.Snapshot()
	if snap.Current == nil || snap.Current.GlobalPosition != 101 {
		t.Errorf("snapshot current = %+v, want global 101", snap.Current)
	}
	if snap.SequenceLength != 3 {
		t.Errorf("sequence length = %d, want 3", snap.SequenceLength)
	}
}
