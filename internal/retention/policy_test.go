package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSweepRetainsFreshRemovesStale(t *testing.T) {
	root := t.TempDir()
	fresh := filepath.Join(root, "fresh-session")
	stale := filepath.Join(root, "stale-session")
	require.NoError(t, os.Mkdir(fresh, 0o755))
	require.NoError(t, os.Mkdir(stale, 0o755))

	ttl := 24 * time.Hour
	now := time.Now()
	require.NoError(t, os.Chtimes(fresh, now, now.Add(-ttl+time.Minute))) // age = TTL - ε
	require.NoError(t, os.Chtimes(stale, now, now.Add(-ttl-time.Minute))) // age = TTL + ε

	log := logrus.NewEntry(logrus.New())
	var deleted []string
	del := func(path string) (int, error) {
		deleted = append(deleted, path)
		return 1, os.RemoveAll(path)
	}

	SweepNow(log, Policy{Name: "session", Root: root, MaxAge: ttl}, del, nil)

	require.Equal(t, []string{stale}, deleted)
	_, err := os.Stat(fresh)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
}

func TestSweepIsBestEffortOnDeleteFailure(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.Mkdir(b, 0o755))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(a, past, past))
	require.NoError(t, os.Chtimes(b, past, past))

	log := logrus.NewEntry(logrus.New())
	var attempted []string
	del := func(path string) (int, error) {
		attempted = append(attempted, path)
		if filepath.Base(path) == "a" {
			return 0, os.ErrPermission
		}
		return 1, os.RemoveAll(path)
	}

	require.NotPanics(t, func() {
		SweepNow(log, Policy{Name: "session", Root: root, MaxAge: 24 * time.Hour}, del, nil)
	})
	require.ElementsMatch(t, []string{a, b}, attempted)
}
