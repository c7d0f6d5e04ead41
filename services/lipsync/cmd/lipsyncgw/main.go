// Lip-Sync Gateway.
//
// Wraps the node-graph backend to retime a video's mouth movement to a
// driving audio track, with an optional default-face reference when the
// caller supplies no face image (GiGi mode).
//
// Port: 8104 (env: LIPSYNC_PORT).
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

func lipsyncBinding() nodegraph.GraphBinding {
	return nodegraph.GraphBinding{
		LoadInputs: []nodegraph.LoadTarget{
			{ClassType: "VHS_LoadVideo", InputKey: "video"},
			{ClassType: "LoadAudio", InputKey: "audio"},
		},
		ScalarTargets: map[string]nodegraph.ScalarTarget{
			"fps": {ClassType: "LipSyncSampler", InputKey: "fps"},
		},
	}
}

func main() {
	log := logging.New("lipsyncgw")

	if err := telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "lipsyncgw", config.String("BUILD_VERSION", "dev")); err != nil {
		log.WithError(err).Warn("sentry init failed")
	}
	defer telemetry.Flush()

	templatePath := config.String("WORKFLOW_PATH", "workflows/lipsync.json")
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		log.WithError(err).Fatal("reading graph template failed")
	}
	template, err := nodegraph.LoadTemplate(raw)
	if err != nil {
		log.WithError(err).Fatal("parsing graph template failed")
	}

	outputDir := config.String("OUTPUT_DIR", "outputs/lipsync")
	sessionRoot := config.String("SESSION_DIR", "sessions")
	sessions := workspace.New(sessionRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workspace.StartSweeper(ctx, log, sessions, config.Hours("SESSION_MAX_AGE_HOURS", workspace.DefaultSessionMaxAge), workspace.DefaultSweepSchedule)
	go retention.Run(ctx, log, retention.Policy{
		Name:     "lipsyncgw-output",
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
		Name:            "lipsyncgw",
		Client:          nodegraph.NewClient(config.String("BACKEND_URL", "http://localhost:8188"), &http.Client{Timeout: 35 * time.Minute}),
		Template:        template,
		Binding:         lipsyncBinding(),
		Timeout:         config.Minutes("LIPSYNC_TIMEOUT_MIN", 30*time.Minute),
		MediaKind:       "mp4",
		UploadKind:      nodegraph.UploadVideo,
		OutputDir:       outputDir,
		Sessions:        sessions,
		Capabilities:    gateway.DetectCapabilities(facePath),
		DefaultFacePath: facePath,
		Log:             log,
	}

	r := g.Router()
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	port := config.String("LIPSYNC_PORT", "8104")
	addr := ":" + port
	log.WithField("addr", addr).Info("lipsyncgw starting")

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
