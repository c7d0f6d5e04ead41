// Scenario→Timetable Gateway.
//
// Exposes the scenario synthesis / shot segmentation / dialogue validation
// pipeline of internal/scenario over a server-sent events endpoint.
//
// Port: 8101 (env: SCENARIO_PORT).
//
// Routes:
//
//	POST /generate        — run the pipeline, streaming SSE events
//	GET  /health           — liveness + LLM configuration presence
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightloom/adcast/internal/config"
	"github.com/brightloom/adcast/internal/llm"
	"github.com/brightloom/adcast/internal/llm/openai"
	"github.com/brightloom/adcast/internal/scenario"
	"github.com/brightloom/adcast/internal/scenario/sse"
	"github.com/brightloom/adcast/pkg/logging"
	"github.com/brightloom/adcast/pkg/metrics"
	"github.com/brightloom/adcast/pkg/telemetry"
)

type generateRequest struct {
	Brand            string  `json:"brand"`
	UserQuery        string  `json:"user_query"`
	VideoDurationSec float64 `json:"video_duration_sec"`
}

func main() {
	log := logging.New("scenariogw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "scenariogw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	apiKey := config.String("LLM_API_KEY", "")
	model := config.String("LLM_MODEL", "gpt-4o-mini")
	var opts []openai.Option
	if baseURL := config.String("LLM_BASE_URL", ""); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	opts = append(opts, openai.WithTimeout(60*time.Second))

	provider, err := openai.New(apiKey, model, opts...)
	if err != nil {
		log.WithError(err).Fatal("llm client init failed")
	}
	var llmClient llm.Client = provider

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return metrics.Middleware("scenariogw", next) })

	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"checks": map[string]bool{"llm_configured": apiKey != ""},
		})
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"client","message":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}
		if req.VideoDurationSec <= 0 {
			http.Error(w, `{"error":"client","message":"video_duration_sec must be positive"}`, http.StatusBadRequest)
			return
		}

		entry := log.WithField("brand", req.Brand)
		events := scenario.Generate(r.Context(), scenario.Request{
			Brand:            req.Brand,
			UserQuery:        req.UserQuery,
			VideoDurationSec: req.VideoDurationSec,
		}, scenario.Deps{LLM: llmClient, Log: entry})

		sse.Stream(w, r, entry, events)
	})

	port := config.String("SCENARIO_PORT", "8101")
	addr := ":" + port
	log.WithField("addr", addr).Info("scenariogw starting")

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams run open-ended
		IdleTimeout:  120 * time.Second,
	}
	if err := httpSrv.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
