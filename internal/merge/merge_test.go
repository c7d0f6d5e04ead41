package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightloom/adcast/internal/apierr"
)

func TestVideosRejectsFewerThanTwoInputs(t *testing.T) {
	err := Videos(context.Background(), []string{"only_one.mp4"}, "out.mp4")
	require.Error(t, err)
	require.Equal(t, apierr.Client, apierr.As(err).Kind)
}

func TestProjectRejectsFewerThanTwoScenes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene_001.mp4"), []byte("x"), 0o644))

	err := Project(context.Background(), dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	require.Equal(t, apierr.Client, apierr.As(err).Kind)
}

func TestProjectIgnoresNonSceneFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene_001.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	// Still fewer than 2 scenes even though 2 files exist in the directory.
	err := Project(context.Background(), dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
}

func TestWriteConcatListEscapesQuotesAndUsesAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b's.mp4")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("x"), 0o644))

	listPath, err := writeConcatList([]string{a, b})
	require.NoError(t, err)
	defer os.Remove(listPath)

	content, err := os.ReadFile(listPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "file '"+a+"'")
	require.Contains(t, string(content), `b'\''s.mp4`)
}

func TestAbsFloat(t *testing.T) {
	require.Equal(t, 0.5, absFloat(-0.5))
	require.Equal(t, 0.5, absFloat(0.5))
}
