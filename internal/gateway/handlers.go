package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightloom/adcast/internal/apierr"
	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ae := apierr.As(err)
	writeJSON(w, ae.Status, map[string]string{"error": string(ae.Kind), "message": ae.Error()})
}

// handleCapabilities answers GET /.
func (g *Gateway) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"gateway":                g.Name,
		"default_face_available": g.Capabilities.DefaultFaceAvailable,
	})
}

// handleHealth answers GET /health: liveness, backend reachability,
// configuration presence.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]bool{
		"graph_template_loaded": len(g.Template) > 0,
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, g.Client.BaseURL+"/system_stats", nil)
	if err == nil {
		resp, err := g.Client.HTTPClient.Do(req)
		checks["backend_reachable"] = err == nil && resp != nil && resp.StatusCode < 500
		if resp != nil {
			resp.Body.Close()
		}
	} else {
		checks["backend_reachable"] = false
	}

	for _, ok := range checks {
		if !ok {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "checks": checks})
}

// handleUpload answers POST /upload/*.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, apierr.NewClient("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := firstUploadedFile(r)
	if err != nil {
		writeError(w, apierr.NewClient("upload requires one file part: %v", err))
		return
	}
	defer file.Close()

	name, err := g.Client.Upload(r.Context(), g.UploadKind, header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func firstUploadedFile(r *http.Request) (io.ReadCloser, *fileHeader, error) {
	for _, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			return nil, nil, err
		}
		return f, &fileHeader{Filename: headers[0].Filename}, nil
	}
	return nil, nil, fmt.Errorf("no file part present")
}

type fileHeader struct{ Filename string }

// runRequest is the JSON body for POST /run and the form fields for
// POST /run/form.
type runRequest struct {
	Prompt          string             `json:"prompt"`
	StagedFilenames []string           `json:"staged_filenames"`
	Scalars         map[string]float64 `json:"scalars"`
	FPS             float64            `json:"fps"`
	Seed            int64              `json:"seed"`
	SessionID       string             `json:"session_id"`

	// UseDefaultFace stages the gateway's default-face asset as the first
	// input instead of a client-supplied face reference (GiGi mode). A 400
	// is returned when the asset is not present on this instance.
	UseDefaultFace bool `json:"use_default_face"`

	// ProjectID/Sequence are the video gateway's project-scoped output
	// convention: when ProjectID is set, the run's output is
	// persisted as outputs/proj_<ProjectID>/scene_<Sequence:03d>.mp4
	// instead of the gateway's flat local output directory.
	ProjectID string `json:"project_id"`
	Sequence  int    `json:"sequence"`
}

// handleRun answers POST /<action>: execute the bound graph
// against already-staged inputs.
func (g *Gateway) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	g.runAndRespond(w, r, req, "")
}

// handleRunForm answers POST /<action>/form: uploads are inline with the
// run parameters in one multipart request.
func (g *Gateway) handleRunForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, apierr.NewClient("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := runRequest{Prompt: r.FormValue("prompt"), ProjectID: r.FormValue("project_id")}
	if seed, err := strconv.ParseInt(r.FormValue("seed"), 10, 64); err == nil {
		req.Seed = seed
	}
	if fps, err := strconv.ParseFloat(r.FormValue("fps"), 64); err == nil {
		req.FPS = fps
	}
	if seq, err := strconv.Atoi(r.FormValue("sequence")); err == nil {
		req.Sequence = seq
	}

	var stagedNames []string
	for _, headers := range r.MultipartForm.File {
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				writeError(w, apierr.NewClient("opening upload %s: %v", h.Filename, err))
				return
			}
			name, err := g.Client.Upload(r.Context(), g.UploadKind, h.Filename, f)
			f.Close()
			if err != nil {
				writeError(w, err)
				return
			}
			stagedNames = append(stagedNames, name)
		}
	}
	req.StagedFilenames = stagedNames

	g.runAndRespond(w, r, req, "")
}

func (g *Gateway) runAndRespond(w http.ResponseWriter, r *http.Request, req runRequest, sessionID string) {
	if req.UseDefaultFace {
		if !g.Capabilities.DefaultFaceAvailable {
			writeError(w, apierr.NewClient("no default face asset is available on this gateway, upload a face image first"))
			return
		}
		f, err := os.Open(g.DefaultFacePath)
		if err != nil {
			writeError(w, apierr.NewInternal(err))
			return
		}
		staged, err := g.Client.Upload(r.Context(), nodegraph.UploadImage, filepath.Base(g.DefaultFacePath), f)
		f.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		req.StagedFilenames = append([]string{staged}, req.StagedFilenames...)
	}

	metrics.InFlightRuns.WithLabelValues(g.Name).Inc()
	defer metrics.InFlightRuns.WithLabelValues(g.Name).Dec()

	start := time.Now()
	var lastProgress int
	data, err := g.Client.Run(r.Context(), g.Template, g.Binding, nodegraph.RewriteParams{
		StagedFilenames: req.StagedFilenames,
		Prompt:          req.Prompt,
		Scalars:         req.Scalars,
		FPS:             req.FPS,
		Seed:            req.Seed,
	}, g.Timeout, func(value, max int) {
		if max > 0 {
			lastProgress = (value * 100) / max
			g.Log.WithField("percent", lastProgress).Debug("run progress")
		}
	})
	metrics.RunDuration.WithLabelValues(g.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "upstream_error"
		if ae := apierr.As(err); ae.Kind == apierr.Timeout {
			outcome = "timeout"
		}
		metrics.RunOutcomes.WithLabelValues(g.Name, outcome).Inc()
		writeError(w, err)
		return
	}
	metrics.RunOutcomes.WithLabelValues(g.Name, "ok").Inc()

	if req.ProjectID != "" {
		path, err := nodegraph.PersistProjectScene(g.OutputDir, req.ProjectID, req.Sequence, data)
		if err != nil {
			writeError(w, apierr.NewInternal(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"output": path})
		return
	}

	filename, err := nodegraph.Persist(g.OutputDir, g.Sessions, sessionID, g.MediaKind, data)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": filename})
}

// handleOutputGet answers GET /output/{name}.
func (g *Gateway) handleOutputGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := os.ReadFile(filepath.Join(g.OutputDir, name))
	if err != nil {
		writeError(w, apierr.NotFound("output %q not found", name))
		return
	}
	w.Write(data)
}

// handleOutputDelete answers DELETE /output/{name}.
func (g *Gateway) handleOutputDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := os.Remove(filepath.Join(g.OutputDir, name)); err != nil {
		if os.IsNotExist(err) {
			writeError(w, apierr.NotFound("output %q not found", name))
			return
		}
		writeError(w, apierr.NewInternal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOutputList answers GET /outputs.
func (g *Gateway) handleOutputList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(g.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		writeError(w, apierr.NewInternal(err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

// handleSessionUpload answers POST /session/upload: multipart upload staged
// directly into the session workspace instead of the backend.
func (g *Gateway) handleSessionUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, apierr.NewClient("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		writeError(w, apierr.NewClient("session_id is required"))
		return
	}

	file, header, err := firstUploadedFile(r)
	if err != nil {
		writeError(w, apierr.NewClient("upload requires one file part: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	name, err := g.Sessions.Put(sessionID, header.Filename, data)
	if err != nil {
		writeError(w, apierr.NewClient("invalid artifact name: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// handleSessionRun answers POST /session/<action>: inputs are read from the
// session workspace, uploaded to the backend, then run exactly as handleRun.
func (g *Gateway) handleSessionRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		runRequest
		InputNames []string `json:"input_names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" {
		writeError(w, apierr.NewClient("session_id is required"))
		return
	}

	var stagedNames []string
	for _, name := range req.InputNames {
		data, err := g.Sessions.Get(req.SessionID, name)
		if err != nil {
			if err == workspace.ErrNotFound {
				writeError(w, apierr.NotFound("session artifact %q not found", name))
				return
			}
			writeError(w, apierr.NewInternal(err))
			return
		}
		staged, err := g.Client.Upload(r.Context(), g.UploadKind, name, strings.NewReader(string(data)))
		if err != nil {
			writeError(w, err)
			return
		}
		stagedNames = append(stagedNames, staged)
	}
	req.StagedFilenames = stagedNames

	g.runAndRespond(w, r, req.runRequest, req.SessionID)
}

// handleSessionFiles answers GET /session/{id}/files.
func (g *Gateway) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifacts, exists, err := g.Sessions.List(id)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	if artifacts == nil {
		artifacts = []workspace.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists, "files": artifacts})
}

// handleSessionFile answers GET /session/{id}/file/{name}.
func (g *Gateway) handleSessionFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	data, err := g.Sessions.Get(id, name)
	if err != nil {
		if err == workspace.ErrNotFound {
			writeError(w, apierr.NotFound("session artifact %q not found", name))
			return
		}
		writeError(w, apierr.NewInternal(err))
		return
	}
	w.Write(data)
}

// handleSessionDelete answers DELETE /session/{id}.
func (g *Gateway) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := g.Sessions.Delete(id)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"files_removed": n})
}
