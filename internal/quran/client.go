package quran

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultAPIBaseURL is the public content API serving chapter and page text.
	DefaultAPIBaseURL = "https://api.alquran.cloud/v1"

	// DefaultCDNBaseURL is the audio CDN serving one clip per verse at 128 kbps.
	DefaultCDNBaseURL = "https://cdn.islamic.network/quran/audio/128"

	textEdition = "quran-uthmani"
)

// NetworkError reports a failed content API call. Callers treat it as
// "no data", not as a fatal condition.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("content request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("content request %s: status %d", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client fetches chapter and page text from the content API and constructs
// audio clip URLs. It is safe for concurrent use.
type Client struct {
	apiBase string
	cdnBase string
	http    *http.Client
}

// NewClient returns a Client for the given API and CDN base URLs.
// Empty strings select the public defaults.
func NewClient(apiBase, cdnBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}
	if cdnBase == "" {
		cdnBase = DefaultCDNBaseURL
	}
	return &Client{
		apiBase: apiBase,
		cdnBase: cdnBase,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type unitsPayload struct {
	Data struct {
		Number int `json:"number"`
		Ayahs  []struct {
			Number        int    `json:"number"`
			Text          string `json:"text"`
			NumberInSurah int    `json:"numberInSurah"`
			Page          int    `json:"page"`
			Surah         struct {
				Number int `json:"number"`
			} `json:"surah"`
		} `json:"ayahs"`
	} `json:"data"`
}

// FetchChapterUnits returns all verses of a chapter, ordered by position.
func (c *Client) FetchChapterUnits(ctx context.Context, chapter int) ([]Unit, error) {
	url := fmt.Sprintf("%s/surah/%d/%s", c.apiBase, chapter, textEdition)
	return c.fetchUnits(ctx, url, chapter)
}

// FetchPageUnits returns all verses on a page, ordered by global position.
// Pages may span chapter boundaries.
func (c *Client) FetchPageUnits(ctx context.Context, page int) ([]Unit, error) {
	url := fmt.Sprintf("%s/page/%d/%s", c.apiBase, page, textEdition)
	return c.fetchUnits(ctx, url, 0)
}

func (c *Client) fetchUnits(ctx context.Context, url string, chapter int) ([]Unit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, Status: resp.StatusCode}
	}

	var payload unitsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	units := make([]Unit, 0, len(payload.Data.Ayahs))
	for _, a := range payload.Data.Ayahs {
		ch := a.Surah.Number
		if ch == 0 {
			// Chapter endpoint omits the per-verse surah object.
			ch = chapter
			if ch == 0 {
				ch = payload.Data.Number
			}
		}
		units = append(units, Unit{
			ChapterNumber:     ch,
			PositionInChapter: a.NumberInSurah,
			GlobalPosition:    a.Number,
			Page:              a.Page,
			Text:              a.Text,
		})
	}
	return units, nil
}

// ClipURL constructs the audio clip URL for a verse. Pure URL construction;
// the fetch itself is what can fail.
func (c *Client) ClipURL(reciterID string, globalPosition int) string {
	return fmt.Sprintf("%s/%s/%d.mp3", c.cdnBase, reciterID, globalPosition)
}
