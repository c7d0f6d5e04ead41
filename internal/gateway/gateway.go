// Package gateway supplies the HTTP scaffolding shared by all three
// inference gateway instances: capability listing,
// health, upload, run, output retrieval, and their session-workspace
// variants. Each gateway binary (cmd/imagegw, cmd/videogw, cmd/lipsyncgw)
// builds one Gateway with its own node-graph template, binding, and
// timeout and mounts Gateway.Router().
package gateway

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/metrics"
)

// Capabilities describes optional behavior this gateway instance can
// perform, computed once at startup rather than carried as a process-level
// boolean.
type Capabilities struct {
	// DefaultFaceAvailable reports whether a default-face asset is present,
	// enabling GiGi-mode requests that omit a face reference.
	DefaultFaceAvailable bool
}

// DetectCapabilities stats defaultFaceAssetPath once at startup.
func DetectCapabilities(defaultFaceAssetPath string) Capabilities {
	_, err := os.Stat(defaultFaceAssetPath)
	return Capabilities{DefaultFaceAvailable: err == nil}
}

// Gateway is one inference-gateway instance's shared state and routes.
type Gateway struct {
	Name         string
	Client       *nodegraph.Client
	Template     nodegraph.Graph
	Binding      nodegraph.GraphBinding
	Timeout      time.Duration
	MediaKind    string // output file extension: "png", "mp4", "wav",...
	UploadKind   nodegraph.UploadKind
	OutputDir    string
	Sessions     *workspace.Store
	Capabilities Capabilities
	// DefaultFacePath is the asset staged for GiGi-mode runs that omit a
	// face reference; Capabilities reports whether it exists.
	DefaultFacePath string
	Log             *logrus.Entry
}

// Router builds the route set every inference gateway exposes.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(g.Timeout + 30*time.Second))
	r.Use(func(next http.Handler) http.Handler { return metrics.Middleware(g.Name, next) })

	r.Get("/", g.handleCapabilities)
	r.Get("/health", g.handleHealth)

	r.Post("/upload/*", g.handleUpload)
	r.Post("/run", g.handleRun)
	r.Post("/run/form", g.handleRunForm)

	r.Get("/output/{name}", g.handleOutputGet)
	r.Delete("/output/{name}", g.handleOutputDelete)
	r.Get("/outputs", g.handleOutputList)

	r.Post("/session/upload", g.handleSessionUpload)
	r.Post("/session/run", g.handleSessionRun)
	r.Get("/session/{id}/files", g.handleSessionFiles)
	r.Get("/session/{id}/file/{name}", g.handleSessionFile)
	r.Delete("/session/{id}", g.handleSessionDelete)

	return r
}
