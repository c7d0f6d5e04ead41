package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/brightloom/adcast/internal/apierr"
	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/ttsclient"
	"github.com/brightloom/adcast/internal/workspace"
	"github.com/brightloom/adcast/pkg/logging"
	"github.com/brightloom/adcast/pkg/metrics"
)

// defaultAmbientPrompt stands in when a caller (or the scenario engine's
// shot synthesis) produced no background-sounds description.
const defaultAmbientPrompt = "quiet room tone"

type server struct {
	log       *logrus.Entry
	tts       *ttsclient.Client // nil when TTS_API_KEY is unset
	backend   *nodegraph.Client
	template  nodegraph.Graph
	binding   nodegraph.GraphBinding
	timeout   time.Duration
	outputDir string
	sessions  *workspace.Store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ae := apierr.As(err)
	writeJSON(w, ae.Status, map[string]string{"error": string(ae.Kind), "message": ae.Error()})
}

func (s *server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"gateway":              "audiogw",
		"tts_configured":       s.tts != nil,
		"ambient_graph_loaded": len(s.template) > 0,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]bool{
		"tts_configured":       s.tts != nil,
		"ambient_graph_loaded": len(s.template) > 0,
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.backend.BaseURL+"/system_stats", nil)
	if err == nil {
		resp, err := s.backend.HTTPClient.Do(req)
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

type ttsRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Seq       int    `json:"seq"`
	VoiceID   string `json:"voice_id"`
	ModelID   string `json:"model_id"`
}

// handleTTS answers POST /tts: synthesize speech for one shot's dialogue
// and store it in the session as tts_<seq>.mp3.
func (s *server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, apierr.NewClient("TTS is not configured on this gateway, set TTS_API_KEY"))
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" || req.Text == "" {
		writeError(w, apierr.NewClient("session_id and text are required"))
		return
	}

	start := time.Now()
	data, err := s.tts.Generate(r.Context(), ttsclient.Request{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		ModelID: req.ModelID,
	})
	metrics.RunDuration.WithLabelValues("audiogw").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunOutcomes.WithLabelValues("audiogw", "upstream_error").Inc()
		writeError(w, err)
		return
	}
	metrics.RunOutcomes.WithLabelValues("audiogw", "ok").Inc()

	name := fmt.Sprintf("tts_%d.mp3", req.Seq)
	if _, err := s.sessions.Put(req.SessionID, name, data); err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	s.log.WithField("session_id", req.SessionID).WithField("name", name).
		WithField("text", logging.Truncate(req.Text, 40)).Info("tts stored")
	writeJSON(w, http.StatusOK, map[string]string{"output": name})
}

type ambientRequest struct {
	SessionID   string  `json:"session_id"`
	Prompt      string  `json:"prompt"`
	DurationSec float64 `json:"duration_sec"`
	Seed        int64   `json:"seed"`
}

// handleAmbient answers POST /ambient: run the ambient node-graph and
// store the result in the session workspace and the local output dir.
func (s *server) handleAmbient(w http.ResponseWriter, r *http.Request) {
	var req ambientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" {
		writeError(w, apierr.NewClient("session_id is required"))
		return
	}
	if req.Prompt == "" {
		req.Prompt = defaultAmbientPrompt
	}

	scalars := map[string]float64{}
	if req.DurationSec > 0 {
		scalars["duration"] = req.DurationSec
	}

	metrics.InFlightRuns.WithLabelValues("audiogw").Inc()
	defer metrics.InFlightRuns.WithLabelValues("audiogw").Dec()

	start := time.Now()
	data, err := s.backend.Run(r.Context(), s.template, s.binding, nodegraph.RewriteParams{
		Prompt:  req.Prompt,
		Scalars: scalars,
		Seed:    req.Seed,
	}, s.timeout, func(value, max int) {
		if max > 0 {
			s.log.WithField("percent", (value*100)/max).Debug("ambient progress")
		}
	})
	metrics.RunDuration.WithLabelValues("audiogw").Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "upstream_error"
		if ae := apierr.As(err); ae.Kind == apierr.Timeout {
			outcome = "timeout"
		}
		metrics.RunOutcomes.WithLabelValues("audiogw", outcome).Inc()
		writeError(w, err)
		return
	}
	metrics.RunOutcomes.WithLabelValues("audiogw", "ok").Inc()

	filename, err := nodegraph.Persist(s.outputDir, s.sessions, req.SessionID, "wav", data)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": filename})
}

func (s *server) handleOutputList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.outputDir)
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

func (s *server) handleOutputGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := os.ReadFile(filepath.Join(s.outputDir, name))
	if err != nil {
		writeError(w, apierr.NotFound("output %q not found", name))
		return
	}
	w.Write(data)
}

func (s *server) handleOutputDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := os.Remove(filepath.Join(s.outputDir, name)); err != nil {
		if os.IsNotExist(err) {
			writeError(w, apierr.NotFound("output %q not found", name))
			return
		}
		writeError(w, apierr.NewInternal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifacts, exists, err := s.sessions.List(id)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	if artifacts == nil {
		artifacts = []workspace.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists, "files": artifacts})
}

func (s *server) handleSessionFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	data, err := s.sessions.Get(id, name)
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

func (s *server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.sessions.Delete(id)
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"files_removed": n})
}
