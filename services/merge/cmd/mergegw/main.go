// Merge/Mix Gateway.
// Pure post-production operations over ffmpeg/ffprobe: concatenating
// session video artifacts, overlaying a speech track onto a silent video,
// mixing a second ambient track in, and collapsing a video project's scenes
// into one final cut.
// Port: 8106 (env: MERGE_PORT).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightloom/adcast/internal/config"
	"github.com/brightloom/adcast/internal/retention"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/logging"
	"github.com/brightloom/adcast/pkg/metrics"
	"github.com/brightloom/adcast/pkg/telemetry"
)

func main() {
	log := logging.New("mergegw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "mergegw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	sessionRoot := config.String("SESSION_DIR", "sessions")
	sessions := workspace.New(sessionRoot)
	projectsDir := config.String("PROJECTS_DIR", "outputs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workspace.StartSweeper(ctx, log, sessions, config.Hours("SESSION_MAX_AGE_HOURS", workspace.DefaultSessionMaxAge), workspace.DefaultSweepSchedule)

	s := &server{sessions: sessions, projectsDir: projectsDir}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(35 * time.Minute))
	r.Use(func(next http.Handler) http.Handler { return metrics.Middleware("mergegw", next) })

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Post("/merge/videos", s.handleMergeVideos)
	r.Post("/merge/audio_video", s.handleMergeAudioVideo)
	r.Post("/mix/audio", s.handleMixAudio)
	r.Post("/merge/project/{id}", s.handleMergeProject)

	port := config.String("MERGE_PORT", "8106")
	addr := ":" + port
	log.WithField("addr", addr).Info("mergegw starting")

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 35 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
