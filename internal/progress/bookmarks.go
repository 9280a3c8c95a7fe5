package progress

import (
	"sync"
	"time"

	"quran-companion/internal/store"
)

const bookmarksKey = "bookmarks"

// Bookmark marks one unit for later.
type Bookmark struct {
	Chapter   int       `json:"chapter"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Bookmarks is the persisted bookmark list.
type Bookmarks struct {
	mu   sync.Mutex
	kv   store.KV
	now  func() time.Time
	list []Bookmark
}

// NewBookmarks returns a Bookmarks collection, loading any persisted entries.
func NewBookmarks(kv store.KV) *Bookmarks {
	b := &Bookmarks{kv: kv, now: time.Now}
	kv.Get(bookmarksKey, &b.list)
	return b
}

// Add bookmarks a unit. Idempotent per (chapter, position).
func (b *Bookmarks) Add(chapter, position int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.list {
		if m.Chapter == chapter && m.Position == position {
			return
		}
	}
	b.list = append(b.list, Bookmark{Chapter: chapter, Position: position, CreatedAt: b.now()})
	b.kv.Set(bookmarksKey, b.list)
}

// Remove deletes a bookmark if present.
func (b *Bookmarks) Remove(chapter, position int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.list {
		if m.Chapter == chapter && m.Position == position {
			b.list = append(b.list[:i], b.list[i+1:]...)
			b.kv.Set(bookmarksKey, b.list)
			return
		}
	}
}

// List returns a copy of all bookmarks in insertion order.
func (b *Bookmarks) List() []Bookmark {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Bookmark, len(b.list))
	copy(out, b.list)
	return out
}
