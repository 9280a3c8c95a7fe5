// Package playback implements the sequential audio engine: ordered, gapless
// playback of one remote clip per verse, with repeat policies, speed control,
// a sleep timer, and a bounded transient-error policy.
package playback

import "quran-companion/internal/quran"

// State is the playback session state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// RepeatKind selects the end-of-clip looping policy.
type RepeatKind int

const (
	RepeatNone RepeatKind = iota
	RepeatUnit
	RepeatSequence
	RepeatRange
)

func (k RepeatKind) String() string {
	switch k {
	case RepeatUnit:
		return "unit"
	case RepeatSequence:
		return "sequence"
	case RepeatRange:
		return "range"
	}
	return "none"
}

// RepeatMode is the repeat policy. For RepeatRange, Start and End are global
// verse positions; they are resolved against the active sequence once when
// the mode is set (or at PlayFrom) and cached for the session.
type RepeatMode struct {
	Kind  RepeatKind
	Start int
	End   int
}

// Speeds are the supported playback rates.
var Speeds = []float64{0.5, 0.75, 1, 1.25, 1.5}

// ValidSpeed reports whether s is a supported playback rate.
func ValidSpeed(s float64) bool {
	for _, v := range Speeds {
		if v == s {
			return true
		}
	}
	return false
}

// maxConsecutiveErrors is the transient-failure bound: failures below it are
// skipped silently, reaching it stops the session with a user-visible notice.
const maxConsecutiveErrors = 3

// Notice codes surfaced to the UI layer.
const (
	NoticePlaybackFailed = "playback_failed"
	NoticeSleepTimerDone = "sleep_timer_done"
)

// Notice is a user-visible playback event.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is the sequencer state exposed to the UI layer.
type Snapshot struct {
	State          string      `json:"state"`
	Reciter        string      `json:"reciter"`
	Current        *quran.Unit `json:"current,omitempty"`
	Cursor         int         `json:"cursor"`
	SequenceLength int         `json:"sequence_length"`
	Elapsed        float64     `json:"elapsed_seconds"`
	Total          float64     `json:"total_seconds"`
	Speed          float64     `json:"speed"`
	Repeat         string      `json:"repeat"`
	ErrorNotice    bool        `json:"error_notice"`
	SleepRemaining float64     `json:"sleep_remaining_seconds"`
}
