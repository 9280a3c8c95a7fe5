package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"

	"quran-companion/internal/memorize"
	"quran-companion/internal/playback"
	"quran-companion/internal/progress"
	"quran-companion/internal/quran"
	"quran-companion/internal/store"
)

// stubPlayer never delivers events; handler tests only exercise the command
// surface, not clip lifecycles.
type stubPlayer struct{}

type stubClip struct{}

func (stubClip) Play()                        {}
func (stubClip) Pause()                       {}
func (stubClip) Seek(float64)                 {}
func (stubClip) SetRate(float64)              {}
func (stubClip) Position() (float64, float64) { return 0, 0 }
func (stubClip) Close()                       {}

func (stubPlayer) Load(url string, cb playback.Callbacks) playback.Clip { return stubClip{} }

const chapterJSON = `{
  "data": {
    "number": 112,
    "ayahs": [
      {"number": 6222, "text": "first", "numberInSurah": 1, "page": 604},
      {"number": 6223, "text": "second", "numberInSurah": 2, "page": 604}
    ]
  }
}`

func newTestRouter(t *testing.T, contentStatus int) chi.Router {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentStatus != http.StatusOK {
			w.WriteHeader(contentStatus)
			return
		}
		w.Write([]byte(chapterJSON))
	}))
	t.Cleanup(srv.Close)

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	kv := store.NewMemory()
	content := quran.NewClient(srv.URL, "")
	seq := playback.NewSequencer(stubPlayer{}, content.ClipURL, log, nil)
	sched := memorize.NewScheduler(kv, log, nil)
	timer := progress.NewReadingTimer(kv)
	prog := progress.NewTracker(kv, log, 10, timer)
	marks := progress.NewBookmarks(kv)

	return NewHandler(content, seq, sched, prog, timer, marks, log).Routes()
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPlayChapter(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	rec := doJSON(t, r, http.MethodPost, "/playback/chapters/112/play", map[string]int{"start_index": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap playback.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != "loading" {
		t.Errorf("state = %s, want loading", snap.State)
	}
	if snap.SequenceLength != 2 {
		t.Errorf("sequence length = %d, want 2", snap.SequenceLength)
	}
}

func TestPlayChapter_bad_chapter(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/playback/chapters/999/play", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPlayChapter_content_unavailable(t *testing.T) {
	r := newTestRouter(t, http.StatusServiceUnavailable)

	if rec := doJSON(t, r, http.MethodPost, "/playback/chapters/112/play", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestPlaybackCommands(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/playback/stop", nil); rec.Code != http.StatusOK {
		t.Errorf("stop: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/playback/speed", map[string]float64{"speed": 1.25}); rec.Code != http.StatusOK {
		t.Errorf("speed: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/playback/speed", map[string]float64{"speed": 3}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid speed: status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/playback/repeat", map[string]any{"mode": "sequence"}); rec.Code != http.StatusOK {
		t.Errorf("repeat: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/playback/repeat", map[string]any{"mode": "bogus"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid repeat: status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/playback/sleep", map[string]int{"minutes": 15}); rec.Code != http.StatusOK {
		t.Errorf("sleep: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodDelete, "/playback/sleep", nil); rec.Code != http.StatusOK {
		t.Errorf("clear sleep: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPut, "/playback/reciter", map[string]string{"id": "ar.husary"}); rec.Code != http.StatusOK {
		t.Errorf("reciter: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPut, "/playback/reciter", map[string]string{"id": "nope"}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown reciter: status = %d, want 400", rec.Code)
	}
}

func TestMemorizationFlow(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/memorization/chapters/112/units/1/memorized", nil); rec.Code != http.StatusOK {
		t.Fatalf("memorized: status = %d", rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/memorization/due", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("due: status = %d", rec.Code)
	}
	var due []memorize.UnitRef
	if err := json.Unmarshal(rec.Body.Bytes(), &due); err != nil {
		t.Fatalf("decode due: %v", err)
	}
	if len(due) != 1 || due[0].Chapter != 112 {
		t.Errorf("due = %v", due)
	}

	if rec := doJSON(t, r, http.MethodPost, "/memorization/chapters/112/units/1/review",
		map[string]bool{"correct": true}); rec.Code != http.StatusOK {
		t.Errorf("review: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/memorization/chapters/112/units/1/review",
		map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("review without verdict: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/memorization/chapters/112", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chapter progress: status = %d", rec.Code)
	}
	var chRec memorize.ChapterRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &chRec); err != nil {
		t.Fatalf("decode chapter: %v", err)
	}
	if chRec.TotalUnits != 4 {
		t.Errorf("total units = %d, want 4", chRec.TotalUnits)
	}

	if rec := doJSON(t, r, http.MethodGet, "/memorization/chapters/50", nil); rec.Code != http.StatusNotFound {
		t.Errorf("untouched chapter: status = %d, want 404", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/memorization/sessions/end", nil); rec.Code != http.StatusConflict {
		t.Errorf("end without session: status = %d, want 409", rec.Code)
	}

	rec := doJSON(t, r, http.MethodPost, "/memorization/sessions",
		map[string]any{"chapter": 112, "mode": "review"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: status = %d", rec.Code)
	}
	var sess memorize.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID == "" || sess.Mode != memorize.ModeReview {
		t.Errorf("session = %+v", sess)
	}

	if rec := doJSON(t, r, http.MethodPost, "/memorization/sessions",
		map[string]any{"chapter": 112, "mode": "cram"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid mode: status = %d, want 400", rec.Code)
	}

	if rec := doJSON(t, r, http.MethodPost, "/memorization/sessions/end", nil); rec.Code != http.StatusOK {
		t.Errorf("end session: status = %d", rec.Code)
	}
}

func TestProgressEndpoints(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/progress/read",
		map[string]int{"chapter": 112, "position": 1}); rec.Code != http.StatusOK {
		t.Fatalf("read: status = %d", rec.Code)
	}
	if rec := doJSON(t, r, http.MethodPost, "/progress/reading-time",
		map[string]int{"seconds": 120}); rec.Code != http.StatusOK {
		t.Fatalf("reading-time: status = %d", rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/progress/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: status = %d", rec.Code)
	}
	var snap progress.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalUnitsRead != 1 || snap.StreakDays != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.TodayMinutes != 2 {
		t.Errorf("today minutes = %d, want 2", snap.TodayMinutes)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	if rec := doJSON(t, r, http.MethodPost, "/bookmarks/",
		map[string]int{"chapter": 2, "position": 255}); rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d", rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/bookmarks/", nil)
	var list []progress.Bookmark
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Chapter != 2 {
		t.Errorf("list = %v", list)
	}

	if rec := doJSON(t, r, http.MethodDelete, "/bookmarks/",
		map[string]int{"chapter": 2, "position": 255}); rec.Code != http.StatusOK {
		t.Errorf("remove: status = %d", rec.Code)
	}
}

func TestListReciters(t *testing.T) {
	r := newTestRouter(t, http.StatusOK)

	rec := doJSON(t, r, http.MethodGet, "/playback/reciters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var reciters []quran.Reciter
	if err := json.Unmarshal(rec.Body.Bytes(), &reciters); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reciters) != 5 {
		t.Errorf("reciters = %d, want 5", len(reciters))
	}
}
