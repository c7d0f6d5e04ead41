package gateway

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brightloom/adcast/internal/apierr"
	"github.com/brightloom/adcast/internal/merge"
)

// MountProjectRoutes adds the Video Gateway's project/scene endpoints on
// top of the common route set. Not called by the image or lip-sync gateways — only
// the video gateway deals in project-scoped scene folders.
func (g *Gateway) MountProjectRoutes(r chi.Router) {
	r.Get("/projects", g.handleProjectList)
	r.Get("/project/{id}/videos", g.handleProjectVideos)
	r.Post("/merge/project/{id}", g.handleMergeProject)
	r.Delete("/project/{id}", g.handleProjectDelete)
}

func (g *Gateway) projectDir(id string) string {
	return filepath.Join(g.OutputDir, "proj_"+id)
}

// handleProjectList answers GET /projects: every proj_<id> directory under
// the output root.
func (g *Gateway) handleProjectList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(g.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		writeError(w, apierr.NewInternal(err))
		return
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "proj_") {
			ids = append(ids, strings.TrimPrefix(e.Name(), "proj_"))
		}
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, ids)
}

// handleProjectVideos answers GET /project/{id}/videos: the scene_NNN.mp4
// files (and final.mp4, if concatenated already) for one project.
func (g *Gateway) handleProjectVideos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := os.ReadDir(g.projectDir(id))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, apierr.NotFound("project %q not found", id))
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

// handleMergeProject answers POST /merge/project/{id}: concatenate the
// project's scenes into final.mp4.
func (g *Gateway) handleMergeProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir := g.projectDir(id)
	outPath := filepath.Join(dir, "final.mp4")

	if err := merge.Project(r.Context(), dir, outPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": "proj_" + id + "/final.mp4"})
}

// handleProjectDelete answers DELETE /project/{id}.
func (g *Gateway) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := os.RemoveAll(g.projectDir(id)); err != nil {
		writeError(w, apierr.NewInternal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
