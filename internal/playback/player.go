package playback

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Callbacks deliver asynchronous clip events. Implementations of Player must
// never invoke a callback from inside Load; the sequencer re-enters itself on
// every event and relies on delivery happening after Load returns.
type Callbacks struct {
	// OnReady fires once the clip is fetched and playable; totalSeconds is
	// the clip duration.
	OnReady func(totalSeconds float64)
	// OnEnded fires when the clip plays to completion.
	OnEnded func()
	// OnError fires on a load or playback failure.
	OnError func(err error)
}

// Clip is a single loaded audio resource. At most one clip is active per
// sequencer; Close releases the resource and suppresses further events.
type Clip interface {
	Play()
	Pause()
	Seek(seconds float64)
	SetRate(rate float64)
	Position() (elapsed, total float64)
	Close()
}

// Player loads clips by URL. Load returns a handle immediately; events
// arrive later through the callbacks.
type Player interface {
	Load(url string, cb Callbacks) Clip
}

// cdnBytesPerSecond is the byte rate of the CDN's constant 128 kbps encoding,
// used to derive clip duration from Content-Length.
const cdnBytesPerSecond = 16000

// HTTPPlayer is a headless Player: it probes the clip URL over HTTP, derives
// the duration from Content-Length, and simulates playback progress on a
// wall-clock timer scaled by the playback rate.
type HTTPPlayer struct {
	client *http.Client
	log    *slog.Logger
}

// NewHTTPPlayer returns an HTTPPlayer.
func NewHTTPPlayer(log *slog.Logger) *HTTPPlayer {
	return &HTTPPlayer{
		client: &http.Client{Timeout: 20 * time.Second},
		log:    log,
	}
}

// Load implements Player.Load.
func (p *HTTPPlayer) Load(url string, cb Callbacks) Clip {
	c := &httpClip{cb: cb, rate: 1}
	go c.fetch(p.client, url)
	return c
}

// httpClip simulates a single clip. Elapsed time only advances while playing,
// at the configured rate.
type httpClip struct {
	mu        sync.Mutex
	cb        Callbacks
	total     float64
	rate      float64
	played    float64   // seconds of clip consumed before startedAt
	startedAt time.Time // wall-clock anchor, zero while paused
	timer     *time.Timer
	closed    bool
	ready     bool
}

func (c *httpClip) fetch(client *http.Client, url string) {
	resp, err := client.Head(url)
	if err != nil {
		c.fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(fmt.Errorf("clip %s: status %d", url, resp.StatusCode))
		return
	}
	if resp.ContentLength <= 0 {
		c.fail(fmt.Errorf("clip %s: unknown length", url))
		return
	}

	total := float64(resp.ContentLength) / cdnBytesPerSecond

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.total = total
	c.ready = true
	onReady := c.cb.OnReady
	c.mu.Unlock()

	if onReady != nil {
		onReady(total)
	}
}

func (c *httpClip) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	onError := c.cb.OnError
	c.mu.Unlock()

	if onError != nil {
		onError(err)
	}
}

// Play implements Clip.Play.
func (c *httpClip) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.ready || !c.startedAt.IsZero() {
		return
	}
	c.startedAt = time.Now()
	c.armTimerLocked()
}

// Pause implements Clip.Pause.
func (c *httpClip) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.startedAt.IsZero() {
		return
	}
	c.played += time.Since(c.startedAt).Seconds() * c.rate
	c.startedAt = time.Time{}
	c.stopTimerLocked()
}

// Seek implements Clip.Seek.
func (c *httpClip) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > c.total {
		seconds = c.total
	}
	c.played = seconds
	if !c.startedAt.IsZero() {
		c.startedAt = time.Now()
		c.armTimerLocked()
	}
}

// SetRate implements Clip.SetRate.
func (c *httpClip) SetRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || rate <= 0 {
		return
	}
	if !c.startedAt.IsZero() {
		c.played += time.Since(c.startedAt).Seconds() * c.rate
		c.startedAt = time.Now()
	}
	c.rate = rate
	if !c.startedAt.IsZero() {
		c.armTimerLocked()
	}
}

// Position implements Clip.Position.
func (c *httpClip) Position() (elapsed, total float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed = c.played
	if !c.startedAt.IsZero() {
		elapsed += time.Since(c.startedAt).Seconds() * c.rate
	}
	if elapsed > c.total {
		elapsed = c.total
	}
	return elapsed, c.total
}

// Close implements Clip.Close.
func (c *httpClip) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

// armTimerLocked schedules the end-of-clip event for the remaining duration
// at the current rate. Caller holds c.mu.
func (c *httpClip) armTimerLocked() {
	c.stopTimerLocked()
	remaining := c.total - c.played
	if remaining < 0 {
		remaining = 0
	}
	d := time.Duration(remaining / c.rate * float64(time.Second))
	c.timer = time.AfterFunc(d, c.ended)
}

func (c *httpClip) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *httpClip) ended() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.played = c.total
	c.startedAt = time.Time{}
	onEnded := c.cb.OnEnded
	c.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}
