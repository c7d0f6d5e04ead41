// Video Gateway (I2V).
//
// Wraps the node-graph backend for image-to-video animation. Adds the
// project-scoped scene-folder convention on top of the
// common inference-gateway surface: outputs destined for a project_id land
// under outputs/proj_<project_id>/scene_<NNN>.mp4 instead of the flat
// per-gateway output directory, and can be concatenated via
// POST /merge/project/{id}.
//
// Port: 8103 (env: VIDEO_PORT).
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

func videoBinding() nodegraph.GraphBinding {
	return nodegraph.GraphBinding{
		LoadInputs: []nodegraph.LoadTarget{
			{ClassType: "LoadImage", InputKey: "image"},
		},
		PromptTargets: []nodegraph.ScalarTarget{
			{ClassType: "CLIPTextEncode", TitleContains: "Positive", InputKey: "text"},
		},
		ScalarTargets: map[string]nodegraph.ScalarTarget{
			"steps": {ClassType: "KSampler", InputKey: "steps"},
			"cfg":   {ClassType: "KSampler", InputKey: "cfg"},
		},
		FPSTargets: []nodegraph.ScalarTarget{
			{ClassType: "ImageToVideoLatent", InputKey: "fps"},
			{ClassType: "VHS_VideoCombine", InputKey: "frame_rate"},
		},
		SeedTargets: []nodegraph.ScalarTarget{
			{ClassType: "KSampler", InputKey: "seed"},
		},
	}
}

func main() {
	log := logging.New("videogw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "videogw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	templatePath := config.String("WORKFLOW_PATH", "workflows/i2v.json")
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		log.WithError(err).Fatal("reading graph template failed")
	}
	template, err := nodegraph.LoadTemplate(raw)
	if err != nil {
		log.WithError(err).Fatal("parsing graph template failed")
	}

	outputDir := config.String("OUTPUT_DIR", "outputs")
	sessionRoot := config.String("SESSION_DIR", "sessions")
	sessions := workspace.New(sessionRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workspace.StartSweeper(ctx, log, sessions, config.Hours("SESSION_MAX_AGE_HOURS", workspace.DefaultSessionMaxAge), workspace.DefaultSweepSchedule)
	go retention.Run(ctx, log, retention.Policy{
		Name:     "videogw-output",
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
		Name:            "videogw",
		Client:          nodegraph.NewClient(config.String("BACKEND_URL", "http://localhost:8188"), &http.Client{Timeout: 35 * time.Minute}),
		Template:        template,
		Binding:         videoBinding(),
		Timeout:         config.Minutes("VIDEO_TIMEOUT_MIN", 30*time.Minute),
		MediaKind:       "mp4",
		UploadKind:      nodegraph.UploadImage,
		OutputDir:       outputDir,
		Sessions:        sessions,
		Capabilities:    gateway.DetectCapabilities(facePath),
		DefaultFacePath: facePath,
		Log:             log,
	}

	r := g.Router()
	g.MountProjectRoutes(r)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	port := config.String("VIDEO_PORT", "8103")
	addr := ":" + port
	log.WithField("addr", addr).Info("videogw starting")

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
