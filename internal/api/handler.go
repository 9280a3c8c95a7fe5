// Package api exposes the engine's command and query surface over HTTP for
// the UI layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"quran-companion/internal/memorize"
	"quran-companion/internal/playback"
	"quran-companion/internal/progress"
	"quran-companion/internal/quran"
)

// Handler wires the engine components to HTTP endpoints using go-chi.
type Handler struct {
	content *quran.Client
	seq     *playback.Sequencer
	sched   *memorize.Scheduler
	prog    *progress.Tracker
	timer   *progress.ReadingTimer
	marks   *progress.Bookmarks
	log     *slog.Logger
}

// NewHandler returns a Handler over the given components.
func NewHandler(content *quran.Client, seq *playback.Sequencer, sched *memorize.Scheduler,
	prog *progress.Tracker, timer *progress.ReadingTimer, marks *progress.Bookmarks,
	log *slog.Logger) *Handler {
	return &Handler{
		content: content,
		seq:     seq,
		sched:   sched,
		prog:    prog,
		timer:   timer,
		marks:   marks,
		log:     log,
	}
}

// Routes returns the engine's route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/playback", func(r chi.Router) {
		r.Get("/", h.PlaybackSnapshot)
		r.Post("/chapters/{chapter}/play", h.PlayChapter)
		r.Post("/pages/{page}/play", h.PlayPage)
		r.Post("/toggle", h.TogglePlayPause)
		r.Post("/stop", h.StopPlayback)
		r.Post("/seek", h.Seek)
		r.Post("/next", h.SkipNext)
		r.Post("/prev", h.SkipPrev)
		r.Post("/speed", h.SetSpeed)
		r.Post("/repeat", h.SetRepeatMode)
		r.Post("/sleep", h.SetSleepTimer)
		r.Delete("/sleep", h.ClearSleepTimer)
		r.Put("/reciter", h.SetReciter)
		r.Get("/reciters", h.ListReciters)
	})

	r.Route("/memorization", func(r chi.Router) {
		r.Get("/due", h.DueUnits)
		r.Get("/stats", h.MemorizationStats)
		r.Get("/chapters/{chapter}", h.ChapterProgress)
		r.Route("/chapters/{chapter}/units/{position}", func(r chi.Router) {
			r.Post("/memorized", h.MarkMemorized)
			r.Post("/review-flag", h.MarkForReview)
			r.Post("/review", h.RecordReview)
		})
		r.Post("/sessions", h.StartSession)
		r.Post("/sessions/end", h.EndSession)
		r.Get("/sessions/recent", h.RecentSessions)
	})

	r.Route("/progress", func(r chi.Router) {
		r.Get("/", h.ProgressSnapshot)
		r.Post("/read", h.RecordRead)
		r.Post("/reading-time", h.AddReadingTime)
	})

	r.Route("/bookmarks", func(r chi.Router) {
		r.Get("/", h.ListBookmarks)
		r.Post("/", h.AddBookmark)
		r.Delete("/", h.RemoveBookmark)
	})

	return r
}

// PlaybackSnapshot handles GET /playback.
func (h *Handler) PlaybackSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// PlayChapter handles POST /playback/chapters/{chapter}/play.
// Body: { "start_index": 0 }.
func (h *Handler) PlayChapter(w http.ResponseWriter, r *http.Request) {
	chapter, ok := intParam(r, "chapter")
	if !ok || chapter < 1 || chapter > quran.ChapterCount {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		StartIndex int `json:"start_index"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	units, err := h.content.FetchChapterUnits(r.Context(), chapter)
	if err != nil {
		h.handleContentError(w, err)
		return
	}
	h.seq.PlayFrom(units, body.StartIndex)
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// PlayPage handles POST /playback/pages/{page}/play.
func (h *Handler) PlayPage(w http.ResponseWriter, r *http.Request) {
	page, ok := intParam(r, "page")
	if !ok || page < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		StartIndex int `json:"start_index"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	units, err := h.content.FetchPageUnits(r.Context(), page)
	if err != nil {
		h.handleContentError(w, err)
		return
	}
	h.seq.PlayFrom(units, body.StartIndex)
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// TogglePlayPause handles POST /playback/toggle.
func (h *Handler) TogglePlayPause(w http.ResponseWriter, r *http.Request) {
	h.seq.TogglePlayPause()
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// StopPlayback handles POST /playback/stop.
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	h.seq.Stop()
	w.WriteHeader(http.StatusOK)
}

// Seek handles POST /playback/seek. Body: { "seconds": 12.5 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.seq.Seek(body.Seconds)
	w.WriteHeader(http.StatusOK)
}

// SkipNext handles POST /playback/next.
func (h *Handler) SkipNext(w http.ResponseWriter, r *http.Request) {
	h.seq.SkipNext()
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// SkipPrev handles POST /playback/prev.
func (h *Handler) SkipPrev(w http.ResponseWriter, r *http.Request) {
	h.seq.SkipPrev()
	writeJSON(w, http.StatusOK, h.seq.Snapshot())
}

// SetSpeed handles POST /playback/speed. Body: { "speed": 1.25 }.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := decodeBody(r, &body); err != nil || !playback.ValidSpeed(body.Speed) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.seq.SetSpeed(body.Speed)
	w.WriteHeader(http.StatusOK)
}

// SetRepeatMode handles POST /playback/repeat.
// Body: { "mode": "none"|"unit"|"sequence"|"range", "start": g1, "end": g2 }.
func (h *Handler) SetRepeatMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode  string `json:"mode"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mode := playback.RepeatMode{Start: body.Start, End: body.End}
	switch body.Mode {
	case "none":
		mode.Kind = playback.RepeatNone
	case "unit":
		mode.Kind = playback.RepeatUnit
	case "sequence":
		mode.Kind = playback.RepeatSequence
	case "range":
		mode.Kind = playback.RepeatRange
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.seq.SetRepeatMode(mode)
	w.WriteHeader(http.StatusOK)
}

// SetSleepTimer handles POST /playback/sleep. Body: { "minutes": 15 }.
func (h *Handler) SetSleepTimer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeBody(r, &body); err != nil || body.Minutes <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.seq.SetSleepTimer(body.Minutes)
	w.WriteHeader(http.StatusOK)
}

// ClearSleepTimer handles DELETE /playback/sleep.
func (h *Handler) ClearSleepTimer(w http.ResponseWriter, r *http.Request) {
	h.seq.ClearSleepTimer()
	w.WriteHeader(http.StatusOK)
}

// SetReciter handles PUT /playback/reciter. Body: { "id": "ar.alafasy" }.
// Changing the reciter during active playback stops the session.
func (h *Handler) SetReciter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, ok := quran.ReciterByID(body.ID); !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.seq.SetReciter(body.ID)
	h.log.Info("reciter changed", slog.String("reciter", body.ID))
	w.WriteHeader(http.StatusOK)
}

// ListReciters handles GET /playback/reciters.
func (h *Handler) ListReciters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, quran.Reciters)
}

// DueUnits handles GET /memorization/due?chapter=n (chapter optional).
func (h *Handler) DueUnits(w http.ResponseWriter, r *http.Request) {
	chapter := 0
	if q := r.URL.Query().Get("chapter"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		chapter = n
	}
	due := h.sched.DueUnits(chapter)
	if due == nil {
		due = []memorize.UnitRef{}
	}
	writeJSON(w, http.StatusOK, due)
}

// MemorizationStats handles GET /memorization/stats.
func (h *Handler) MemorizationStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.OverallStats())
}

// ChapterProgress handles GET /memorization/chapters/{chapter}.
func (h *Handler) ChapterProgress(w http.ResponseWriter, r *http.Request) {
	chapter, ok := intParam(r, "chapter")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec := h.sched.ChapterProgress(chapter)
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// MarkMemorized handles POST /memorization/chapters/{chapter}/units/{position}/memorized.
func (h *Handler) MarkMemorized(w http.ResponseWriter, r *http.Request) {
	chapter, position, ok := unitParams(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.sched.MarkMemorized(chapter, position)
	w.WriteHeader(http.StatusOK)
}

// MarkForReview handles POST /memorization/chapters/{chapter}/units/{position}/review-flag.
func (h *Handler) MarkForReview(w http.ResponseWriter, r *http.Request) {
	chapter, position, ok := unitParams(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.sched.MarkForReview(chapter, position)
	w.WriteHeader(http.StatusOK)
}

// RecordReview handles POST /memorization/chapters/{chapter}/units/{position}/review.
// Body: { "correct": true }.
func (h *Handler) RecordReview(w http.ResponseWriter, r *http.Request) {
	chapter, position, ok := unitParams(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body struct {
		Correct *bool `json:"correct"`
	}
	if err := decodeBody(r, &body); err != nil || body.Correct == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.sched.RecordReview(chapter, position, *body.Correct)
	w.WriteHeader(http.StatusOK)
}

// StartSession handles POST /memorization/sessions.
// Body: { "chapter": 2, "mode": "review" }.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chapter int    `json:"chapter"`
		Mode    string `json:"mode"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mode := memorize.SessionMode(body.Mode)
	switch mode {
	case memorize.ModeLearn, memorize.ModeReview, memorize.ModeTest:
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess := h.sched.StartSession(body.Chapter, mode)
	writeJSON(w, http.StatusCreated, sess)
}

// EndSession handles POST /memorization/sessions/end.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sched.EndSession()
	if !ok {
		w.WriteHeader(http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RecentSessions handles GET /memorization/sessions/recent.
func (h *Handler) RecentSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.RecentSessions(10))
}

// ProgressSnapshot handles GET /progress.
func (h *Handler) ProgressSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prog.Snapshot())
}

// RecordRead handles POST /progress/read. Body: { "chapter": 2, "position": 5 }.
func (h *Handler) RecordRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chapter  int `json:"chapter"`
		Position int `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil || body.Chapter < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.prog.RecordUnitRead(body.Chapter, body.Position)
	w.WriteHeader(http.StatusOK)
}

// AddReadingTime handles POST /progress/reading-time. Body: { "seconds": 30 }.
func (h *Handler) AddReadingTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seconds int `json:"seconds"`
	}
	if err := decodeBody(r, &body); err != nil || body.Seconds <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.timer.Add(body.Seconds)
	w.WriteHeader(http.StatusOK)
}

// ListBookmarks handles GET /bookmarks.
func (h *Handler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.marks.List())
}

// AddBookmark handles POST /bookmarks. Body: { "chapter": 2, "position": 5 }.
func (h *Handler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chapter  int `json:"chapter"`
		Position int `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil || body.Chapter < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.marks.Add(body.Chapter, body.Position)
	w.WriteHeader(http.StatusCreated)
}

// RemoveBookmark handles DELETE /bookmarks. Body: { "chapter": 2, "position": 5 }.
func (h *Handler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chapter  int `json:"chapter"`
		Position int `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.marks.Remove(body.Chapter, body.Position)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleContentError(w http.ResponseWriter, err error) {
	var netErr *quran.NetworkError
	if errors.As(err, &netErr) {
		// Content API failure is "no data", not fatal.
		h.log.Info("content fetch failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	h.log.Error("content fetch failed", slog.String("error", err.Error()))
	w.WriteHeader(http.StatusInternalServerError)
}

func intParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, false
	}
	return n, true
}

func unitParams(r *http.Request) (chapter, position int, ok bool) {
	chapter, ok = intParam(r, "chapter")
	if !ok || chapter < 1 || chapter > quran.ChapterCount {
		return 0, 0, false
	}
	position, ok = intParam(r, "position")
	if !ok || position < 1 {
		return 0, 0, false
	}
	return chapter, position, true
}

// decodeBody decodes a JSON body; an empty body decodes to the zero value.
func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
