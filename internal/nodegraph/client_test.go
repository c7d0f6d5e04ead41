package nodegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeBackend simulates enough of a node-graph backend's HTTP+WS surface to
// drive one full Run: upload -> queue -> progress -> history -> view.
func fakeBackend(t *testing.T, promptID string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"name": "staged_abc.png"})
	})

	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": promptID})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(frame{Type: "execution_start"})
		conn.WriteJSON(frame{Type: "progress", Data: mustJSON(progressData{Value: 5, Max: 10})})
		conn.WriteJSON(frame{Type: "executing", Data: mustJSON(executingData{PromptID: promptID, Node: nil})})
	})

	mux.HandleFunc("/history/"+promptID, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{%q: {"outputs": {"9": {"images": [{"filename": "out.png", "subfolder": "", "type": "output"}]}}}}`, promptID)
	})

	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	})

	return httptest.NewServer(mux)
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestClientRunDrivesFullProtocol(t *testing.T) {
	srv := fakeBackend(t, "prompt-123")
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	template := Graph{"1": Node{ClassType: "LoadImage", Inputs: map[string]any{"image": ""}}}
	binding := GraphBinding{LoadInputs: []LoadTarget{{ClassType: "LoadImage", InputKey: "image"}}}

	var progressCalls int
	data, err := c.Run(context.Background(), template, binding, RewriteParams{StagedFilenames: []string{"staged_abc.png"}}, 5*time.Second, func(v, m int) {
		progressCalls++
	})

	require.NoError(t, err)
	require.Equal(t, []byte("fake-image-bytes"), data)
	require.Equal(t, 1, progressCalls)
}

func TestClientUploadReturnsBackendStagedName(t *testing.T) {
	srv := fakeBackend(t, "prompt-xyz")
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	name, err := c.Upload(context.Background(), UploadImage, "ref.png", strings.NewReader("bytes"))
	require.NoError(t, err)
	require.Equal(t, "staged_abc.png", name)
}

func TestClientQueueSurfacesNon200Verbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"node_errors": {"4": "missing required input"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Queue(context.Background(), Graph{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "node_errors")
}

func TestClientAwaitCompletionReturnsErrorOnExecutionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(frame{Type: "execution_error", Data: mustJSON(map[string]string{"prompt_id": "p1"})})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.AwaitCompletion(context.Background(), "p1", nil)
	require.Error(t, err)
}
