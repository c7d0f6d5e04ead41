package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/brightloom/adcast/internal/apierr"
	"github.com/brightloom/adcast/internal/merge"
	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/workspace"
)

type server struct {
	sessions    *workspace.Store
	projectsDir string
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

// materialize copies a session artifact out to a real temp file, since
// ffmpeg needs a filesystem path, not an io.Reader.
func (s *server) materialize(sessionID, name string) (string, error) {
	data, err := s.sessions.Get(sessionID, name)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "merge-in-*-"+filepath.Base(name))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (s *server) persist(sessionID string, data []byte, kind string) (string, error) {
	return nodegraph.Persist("", s.sessions, sessionID, kind, data)
}

type mergeVideosRequest struct {
	SessionID string   `json:"session_id"`
	Names     []string `json:"names"`
}

// handleMergeVideos answers POST /merge/videos: concat a list of session
// video artifacts into one.
func (s *server) handleMergeVideos(w http.ResponseWriter, r *http.Request) {
	var req mergeVideosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" || len(req.Names) < 2 {
		writeError(w, apierr.NewClient("session_id and at least 2 names are required"))
		return
	}

	paths := make([]string, 0, len(req.Names))
	for _, name := range req.Names {
		path, err := s.materialize(req.SessionID, name)
		if err != nil {
			writeError(w, apierr.NotFound("session artifact %q not found", name))
			return
		}
		defer os.Remove(path)
		paths = append(paths, path)
	}

	out, err := os.CreateTemp("", "merge-out-*.mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	out.Close()
	defer os.Remove(out.Name())

	if err := merge.Videos(r.Context(), paths, out.Name()); err != nil {
		writeError(w, err)
		return
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	filename, err := s.persist(req.SessionID, data, "mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": filename})
}

type mergeAudioVideoRequest struct {
	SessionID string `json:"session_id"`
	VideoName string `json:"video_name"`
	AudioName string `json:"audio_name"`
}

// handleMergeAudioVideo answers POST /merge/audio_video.
func (s *server) handleMergeAudioVideo(w http.ResponseWriter, r *http.Request) {
	var req mergeAudioVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" || req.VideoName == "" || req.AudioName == "" {
		writeError(w, apierr.NewClient("session_id, video_name, and audio_name are required"))
		return
	}

	videoPath, err := s.materialize(req.SessionID, req.VideoName)
	if err != nil {
		writeError(w, apierr.NotFound("session artifact %q not found", req.VideoName))
		return
	}
	defer os.Remove(videoPath)

	audioPath, err := s.materialize(req.SessionID, req.AudioName)
	if err != nil {
		writeError(w, apierr.NotFound("session artifact %q not found", req.AudioName))
		return
	}
	defer os.Remove(audioPath)

	out, err := os.CreateTemp("", "merge-av-*.mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	out.Close()
	defer os.Remove(out.Name())

	if err := merge.AudioVideo(r.Context(), videoPath, audioPath, out.Name()); err != nil {
		writeError(w, err)
		return
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	filename, err := s.persist(req.SessionID, data, "mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": filename})
}

type mixAudioRequest struct {
	SessionID          string  `json:"session_id"`
	VideoWithAudioName string  `json:"video_with_audio_name"`
	ExtraAudioName     string  `json:"extra_audio_name"`
	VideoGain          float64 `json:"video_gain"`
	AudioGain          float64 `json:"audio_gain"`
}

// handleMixAudio answers POST /mix/audio.
func (s *server) handleMixAudio(w http.ResponseWriter, r *http.Request) {
	var req mixAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.NewClient("invalid JSON body: %v", err))
		return
	}
	if req.SessionID == "" || req.VideoWithAudioName == "" || req.ExtraAudioName == "" {
		writeError(w, apierr.NewClient("session_id, video_with_audio_name, and extra_audio_name are required"))
		return
	}
	if req.VideoGain == 0 {
		req.VideoGain = 1.0
	}
	if req.AudioGain == 0 {
		req.AudioGain = 1.0
	}

	videoPath, err := s.materialize(req.SessionID, req.VideoWithAudioName)
	if err != nil {
		writeError(w, apierr.NotFound("session artifact %q not found", req.VideoWithAudioName))
		return
	}
	defer os.Remove(videoPath)

	audioPath, err := s.materialize(req.SessionID, req.ExtraAudioName)
	if err != nil {
		writeError(w, apierr.NotFound("session artifact %q not found", req.ExtraAudioName))
		return
	}
	defer os.Remove(audioPath)

	out, err := os.CreateTemp("", "mix-*.mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	out.Close()
	defer os.Remove(out.Name())

	if err := merge.MixAudio(r.Context(), videoPath, audioPath, req.VideoGain, req.AudioGain, out.Name()); err != nil {
		writeError(w, err)
		return
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	filename, err := s.persist(req.SessionID, data, "mp4")
	if err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": filename})
}

// handleMergeProject answers POST /merge/project/{id}: the Merge Gateway's
// own entry point for the same internal/merge.Project operation the Video
// Gateway exposes under its own route.
func (s *server) handleMergeProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir := filepath.Join(s.projectsDir, "proj_"+id)
	outPath := filepath.Join(dir, "final.mp4")

	if err := merge.Project(r.Context(), dir, outPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": "proj_" + id + "/final.mp4"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": map[string]bool{"sessions_configured": s.sessions != nil}})
}
