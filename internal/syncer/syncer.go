// Package syncer pushes the local state blob to the remote account store and
// pulls it back on startup. Sync is best-effort: failures are swallowed,
// logged at debug, and retried on the next periodic tick.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"quran-companion/internal/platform/metrics"
	"quran-companion/internal/store"
)

// SyncKeys are the KV keys included in the synced state blob.
var SyncKeys = []string{"memorization", "progress", "reading-time", "bookmarks"}

// DefaultInterval is the periodic push cadence.
const DefaultInterval = 60 * time.Second

// Client syncs the state blob for one account. Last write wins; there is no
// conflict resolution across devices.
type Client struct {
	base     string
	userID   string
	kv       store.KV
	http     *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics // may be nil
	interval time.Duration
}

// New returns a sync client. An empty base URL or user ID disables syncing.
func New(base, userID string, kv store.KV, log *slog.Logger, m *metrics.Metrics, interval time.Duration) *Client {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Client{
		base:     base,
		userID:   userID,
		kv:       kv,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
		metrics:  m,
		interval: interval,
	}
}

// Enabled reports whether the client is configured to sync.
func (c *Client) Enabled() bool {
	return c.base != "" && c.userID != ""
}

// Push uploads the current state blob.
func (c *Client) Push(ctx context.Context) error {
	blob := c.kv.Snapshot(SyncKeys)
	body, err := json.Marshal(blob)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.stateURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync push: status %d", resp.StatusCode)
	}
	return nil
}

// Pull downloads the remote blob and restores it into the local store.
// A missing remote state (404) is not an error.
func (c *Client) Pull(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stateURL(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync pull: status %d", resp.StatusCode)
	}

	var blob map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&blob); err != nil {
		return err
	}
	c.kv.Restore(blob)
	return nil
}

// Run pulls once, then pushes on a periodic tick until ctx is cancelled.
// A final push runs on shutdown. Never blocks callers on failure.
func (c *Client) Run(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	if err := c.Pull(ctx); err != nil {
		c.log.Debug("initial sync pull failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.push(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			c.push(ctx)
		}
	}
}

func (c *Client) push(ctx context.Context) {
	if err := c.Push(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.IncSyncFailures()
		}
		c.log.Debug("sync push failed, will retry", slog.String("error", err.Error()))
		return
	}
	if c.metrics != nil {
		c.metrics.IncSyncPushes()
	}
}

func (c *Client) stateURL() string {
	return fmt.Sprintf("%s/users/%s/state", c.base, c.userID)
}
