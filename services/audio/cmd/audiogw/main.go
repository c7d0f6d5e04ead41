// Audio Gateway (TTS + ambient).
//
// Two generation paths share one service: speech synthesis through the TTS
// provider's REST API (internal/ttsclient), and ambient/foley synthesis
// through the node-graph backend (internal/nodegraph with the ambient
// workflow template). Both write their results into the session workspace
// so downstream gateways (lip-sync, merge/mix) can read them by name.
//
// Port: 8105 (env: AUDIO_PORT).
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
	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/retention"
	"github.com/brightloom/adcast/internal/ttsclient"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/logging"
	"github.com/brightloom/adcast/pkg/metrics"
	"github.com/brightloom/adcast/pkg/telemetry"
)

func ambientBinding() nodegraph.GraphBinding {
	return nodegraph.GraphBinding{
		PromptTargets: []nodegraph.ScalarTarget{
			{ClassType: "CLIPTextEncode", TitleContains: "Ambient", InputKey: "text"},
		},
		ScalarTargets: map[string]nodegraph.ScalarTarget{
			"duration": {ClassType: "AudioSampler", InputKey: "duration"},
			"steps":    {ClassType: "AudioSampler", InputKey: "steps"},
			"cfg":      {ClassType: "AudioSampler", InputKey: "cfg"},
		},
		SeedTargets: []nodegraph.ScalarTarget{
			{ClassType: "AudioSampler", InputKey: "seed"},
		},
	}
}

func main() {
	log := logging.New("audiogw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "audiogw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	var tts *ttsclient.Client
	if apiKey := config.String("TTS_API_KEY", ""); apiKey != "" {
		client, err := ttsclient.New(ttsclient.Config{
			APIKey:  apiKey,
			VoiceID: config.String("TTS_VOICE_ID", ""),
			ModelID: config.String("TTS_MODEL_ID", ""),
			BaseURL: config.String("TTS_BASE_URL", ""),
		}, nil)
		if err != nil {
			log.WithError(err).Fatal("tts client init failed")
		}
		tts = client
	} else {
		log.Warn("TTS_API_KEY unset, /tts requests will be rejected")
	}

	templatePath := config.String("WORKFLOW_PATH", "workflows/ambient.json")
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		log.WithError(err).Fatal("reading graph template failed")
	}
	template, err := nodegraph.LoadTemplate(raw)
	if err != nil {
		log.WithError(err).Fatal("parsing graph template failed")
	}

	outputDir := config.String("OUTPUT_DIR", "outputs/audio")
	sessionRoot := config.String("SESSION_DIR", "sessions")
	sessions := workspace.New(sessionRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workspace.StartSweeper(ctx, log, sessions, config.Hours("SESSION_MAX_AGE_HOURS", workspace.DefaultSessionMaxAge), workspace.DefaultSweepSchedule)
	go retention.Run(ctx, log, retention.Policy{
		Name:     "audiogw-output",
		Root:     outputDir,
		MaxAge:   config.Hours("FILE_MAX_AGE_HOURS", 2*time.Hour),
		Schedule: workspace.DefaultSweepSchedule,
	}, func(path string) (int, error) {
		if err := os.Remove(path); err != nil {
			return 0, err
		}
		return 1, nil
	}, func(p retention.Policy, name string, n int, err error) {
		if err == nil {
			metrics.SweeperDeletions.WithLabelValues(p.Name).Inc()
		}
	})

	s := &server{
		log:       log,
		tts:       tts,
		backend:   nodegraph.NewClient(config.String("BACKEND_URL", "http://localhost:8188"), &http.Client{Timeout: 15 * time.Minute}),
		template:  template,
		binding:   ambientBinding(),
		timeout:   config.Minutes("AUDIO_TIMEOUT_MIN", 10*time.Minute),
		outputDir: outputDir,
		sessions:  sessions,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout + 30*time.Second))
	r.Use(func(next http.Handler) http.Handler { return metrics.Middleware("audiogw", next) })

	r.Get("/", s.handleCapabilities)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Post("/tts", s.handleTTS)
	r.Post("/ambient", s.handleAmbient)

	r.Get("/outputs", s.handleOutputList)
	r.Get("/output/{name}", s.handleOutputGet)
	r.Delete("/output/{name}", s.handleOutputDelete)

	r.Get("/session/{id}/files", s.handleSessionFiles)
	r.Get("/session/{id}/file/{name}", s.handleSessionFile)
	r.Delete("/session/{id}", s.handleSessionDelete)

	port := config.String("AUDIO_PORT", "8105")
	addr := ":" + port
	log.WithField("addr", addr).Info("audiogw starting")

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.timeout + time.Minute,
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
