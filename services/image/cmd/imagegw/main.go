// Image Gateway (T2I + multi-reference edit).
//
// Wraps the node-graph backend for still image generation, grounded on
// internal/gateway's shared HTTP scaffolding and internal/nodegraph's
// six-phase execution protocol.
//
// Port: 8102 (env: IMAGE_PORT).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightloom/adcast/internal/config"
	"github.com/brightloom/adcast/internal/gateway"
	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/retention"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/logging"
	"github.com/brightloom/adcast/pkg/metrics"
	"github.com/brightloom/adcast/pkg/telemetry"
)

func imageBinding() nodegraph.GraphBinding {
	return nodegraph.GraphBinding{
		LoadInputs: []nodegraph.LoadTarget{
			{ClassType: "LoadImage", InputKey: "image"},
			{ClassType: "LoadImage", InputKey: "image"},
		},
		PromptTargets: []nodegraph.ScalarTarget{
			{ClassType: "CLIPTextEncode", TitleContains: "Positive", InputKey: "text"},
		},
		ScalarTargets: map[string]nodegraph.ScalarTarget{
			"steps":  {ClassType: "KSampler", InputKey: "steps"},
			"cfg":    {ClassType: "KSampler", InputKey: "cfg"},
			"width":  {ClassType: "EmptyLatentImage", InputKey: "width"},
			"height": {ClassType: "EmptyLatentImage", InputKey: "height"},
		},
		SeedTargets: []nodegraph.ScalarTarget{
			{ClassType: "KSampler", InputKey: "seed"},
		},
	}
}

func main() {
	log := logging.New("imagegw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "imagegw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	templatePath := config.String("WORKFLOW_PATH", "workflows/t2i_edit.json")
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		log.WithError(err).Fatal("reading graph template failed")
	}
	template, err := nodegraph.LoadTemplate(raw)
	if err != nil {
		log.WithError(err).Fatal("parsing graph template failed")
	}

	outputDir := config.String("OUTPUT_DIR", "outputs/image")
	sessionRoot := config.String("SESSION_DIR", "sessions")
	sessions := workspace.New(sessionRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workspace.StartSweeper(ctx, log, sessions, config.Hours("SESSION_MAX_AGE_HOURS", workspace.DefaultSessionMaxAge), workspace.DefaultSweepSchedule)
	go retention.Run(ctx, log, retention.Policy{
		Name:     "imagegw-output",
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

	facePath := config.String("DEFAULT_FACE_PATH", "assets/default_face.png")

	g := &gateway.Gateway{
		Name:            "imagegw",
		Client:          nodegraph.NewClient(config.String("BACKEND_URL", "http://localhost:8188"), &http.Client{Timeout: 15 * time.Minute}),
		Template:        template,
		Binding:         imageBinding(),
		Timeout:         config.Minutes("IMAGE_TIMEOUT_MIN", 10*time.Minute),
		MediaKind:       "png",
		UploadKind:      nodegraph.UploadImage,
		OutputDir:       outputDir,
		Sessions:        sessions,
		Capabilities:    gateway.DetectCapabilities(facePath),
		DefaultFacePath: facePath,
		Log:             log,
	}

	r := g.Router()
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	port := config.String("IMAGE_PORT", "8102")
	addr := ":" + port
	log.WithField("addr", addr).Info("imagegw starting")

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: g.Timeout + time.Minute,
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
