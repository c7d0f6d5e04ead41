package sse

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brightloom/adcast/internal/scenario"
)

func TestStreamWritesHeadersAndEvents(t *testing.T) {
	ch := make(chan scenario.Event, 4)
	ch <- scenario.Event{Kind: scenario.EventMetadata, Metadata: &scenario.MetadataEvent{TotalDuration: 25, SceneCount: 5, Status: "started"}}
	ch <- scenario.Event{Kind: scenario.EventScene, Scene: &scenario.Shot{Index: 0, Dialogue: "안녕하세요"}}
	ch <- scenario.Event{Kind: scenario.EventComplete, Complete: &scenario.CompleteEvent{Status: "completed", TotalScenes: 5}}
	close(ch)

	req := httptest.NewRequest("GET", "/scenario/stream", nil)
	rec := httptest.NewRecorder()

	Stream(rec, req, logrus.NewEntry(logrus.New()), ch)

	resp := rec.Result()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	body := rec.Body.String()
	require.Equal(t, 3, strings.Count(body, "data: "))
	require.Contains(t, body, `"type":"metadata"`)
	require.Contains(t, body, `"type":"scene"`)
	require.Contains(t, body, `"type":"complete"`)
}

func TestStreamStopsOnErrorEvent(t *testing.T) {
	ch := make(chan scenario.Event, 3)
	ch <- scenario.Event{Kind: scenario.EventMetadata, Metadata: &scenario.MetadataEvent{}}
	ch <- scenario.Event{Kind: scenario.EventError, Error: &scenario.ErrorEvent{Message: "boom"}}
	ch <- scenario.Event{Kind: scenario.EventScene, Scene: &scenario.Shot{}} // should never be read

	req := httptest.NewRequest("GET", "/scenario/stream", nil)
	rec := httptest.NewRecorder()

	Stream(rec, req, logrus.NewEntry(logrus.New()), ch)

	body := rec.Body.String()
	require.Contains(t, body, `"type":"error"`)
	require.NotContains(t, body, `"type":"scene"`)
}
