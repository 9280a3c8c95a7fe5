package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quran-companion/internal/api"
	"quran-companion/internal/memorize"
	"quran-companion/internal/platform/config"
	"quran-companion/internal/platform/logger"
	"quran-companion/internal/platform/metrics"
	"quran-companion/internal/playback"
	"quran-companion/internal/progress"
	"quran-companion/internal/quran"
	"quran-companion/internal/store"
	"quran-companion/internal/syncer"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv(quran.DefaultAPIBaseURL, quran.DefaultCDNBaseURL, quran.DefaultReciterID)

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	kv, err := store.OpenSQLite(cfg.DBPath, log)
	if err != nil {
		log.Error("open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	met := metrics.New()
	content := quran.NewClient(cfg.ContentAPIURL, cfg.AudioCDNURL)

	seq := playback.NewSequencer(playback.NewHTTPPlayer(log), content.ClipURL, log, met)
	seq.SetReciter(cfg.ReciterID)
	seq.SetNotifier(func(n playback.Notice) {
		log.Warn("playback notice", "code", n.Code, "message", n.Message)
	})

	sched := memorize.NewScheduler(kv, log, met)
	timer := progress.NewReadingTimer(kv)
	prog := progress.NewTracker(kv, log, cfg.DailyGoalUnits, timer)
	marks := progress.NewBookmarks(kv)

	h := api.NewHandler(content, seq, sched, prog, timer, marks, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActivePlayback(seq.Active())
			met.SetDueUnits(len(sched.DueUnits(0)))
		}).ServeHTTP(w, req)
	})
	r.Mount("/", h.Routes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sleep-timer tick, independent of playback state.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				seq.Tick()
			}
		}
	}()

	sync := syncer.New(cfg.SyncURL, cfg.SyncUserID, kv, log, met, cfg.SyncInterval)
	go sync.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("engine starting",
		"port", cfg.Port,
		"reciter", cfg.ReciterID,
		"daily_goal_units", cfg.DailyGoalUnits,
		slog.Bool("sync_enabled", sync.Enabled()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	seq.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("engine stopped")
}
