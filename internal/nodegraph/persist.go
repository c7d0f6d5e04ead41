package nodegraph

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brightloom/adcast/internal/workspace"
)

// Persist writes a run's output bytes into the gateway's local output
// directory and, if sess is non-nil, into the session workspace too.
func Persist(localOutputDir string, sess *workspace.Store, sessionID string, kind string, data []byte) (filename string, err error) {
	filename = OutputFilename(time.Now(), kind)

	if localOutputDir != "" {
		if err := os.MkdirAll(localOutputDir, 0o755); err != nil {
			return "", fmt.Errorf("nodegraph: create output dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(localOutputDir, filename), data, 0o644); err != nil {
			return "", fmt.Errorf("nodegraph: write local output: %w", err)
		}
	}

	if sess != nil && sessionID != "" {
		if _, err := sess.Put(sessionID, filename, data); err != nil {
			return "", fmt.Errorf("nodegraph: write session output: %w", err)
		}
	}

	return filename, nil
}

// PersistProjectScene writes a Video-I2V output under the project/scene
// convention outputs/proj_<project_id>/scene_<sequence:03d>.mp4.
func PersistProjectScene(localOutputDir, projectID string, sequence int, data []byte) (string, error) {
	dir := filepath.Join(localOutputDir, fmt.Sprintf("proj_%s", projectID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("nodegraph: create project dir: %w", err)
	}
	filename := fmt.Sprintf("scene_%03d.mp4", sequence)
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("nodegraph: write project scene: %w", err)
	}
	return filepath.Join(dir, filename), nil
}
