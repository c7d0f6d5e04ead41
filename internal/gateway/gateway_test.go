package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brightloom/adcast/internal/nodegraph"
	"github.com/brightloom/adcast/internal/workspace"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "staged.png"})
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p1"})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "executing", "data": map[string]any{"prompt_id": "p1", "node": nil}})
	})
	mux.HandleFunc("/history/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"p1": {"outputs": {"9": {"images": [{"filename": "o.png", "subfolder": "", "type": "output"}]}}}}`))
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	})
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func testGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	backend := fakeBackend(t)
	outDir := t.TempDir()
	sessDir := t.TempDir()

	g := &Gateway{
		Name:       "imagegw",
		Client:     nodegraph.NewClient(backend.URL, nil),
		Template:   nodegraph.Graph{"1": nodegraph.Node{ClassType: "LoadImage", Inputs: map[string]any{"image": ""}}},
		Binding:    nodegraph.GraphBinding{LoadInputs: []nodegraph.LoadTarget{{ClassType: "LoadImage", InputKey: "image"}}},
		Timeout:    5 * time.Second,
		MediaKind:  "png",
		UploadKind: nodegraph.UploadImage,
		OutputDir:  outDir,
		Sessions:   workspace.New(sessDir),
		Log:        logrus.NewEntry(logrus.New()),
	}
	return g, backend
}

func TestHandleCapabilities(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "imagegw")
}

func TestHandleHealthReportsBackendReachable(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"backend_reachable":true`)
}

func TestHandleRunPersistsOutputAndListsIt(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	body := `{"prompt": "a cat", "staged_filenames": ["staged.png"]}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["output"])

	listReq := httptest.NewRequest(http.MethodGet, "/outputs", nil)
	listRec := httptest.NewRecorder()
	g.Router().ServeHTTP(listRec, listReq)
	require.Contains(t, listRec.Body.String(), resp["output"])
}

func TestHandleOutputGetAndDeleteRoundTrip(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	require.NoError(t, os.WriteFile(g.OutputDir+"/x.png", []byte("data"), 0o644))

	getReq := httptest.NewRequest(http.MethodGet, "/output/x.png", nil)
	getRec := httptest.NewRecorder()
	g.Router().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	require.Equal(t, "data", getRec.Body.String())

	delReq := httptest.NewRequest(http.MethodDelete, "/output/x.png", nil)
	delRec := httptest.NewRecorder()
	g.Router().ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	missingReq := httptest.NewRequest(http.MethodGet, "/output/x.png", nil)
	missingRec := httptest.NewRecorder()
	g.Router().ServeHTTP(missingRec, missingReq)
	require.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestHandleSessionUploadAndFiles(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	var buf strings.Builder
	buf.WriteString("--X\r\nContent-Disposition: form-data; name=\"session_id\"\r\n\r\nsess1\r\n")
	buf.WriteString("--X\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\nhello\r\n--X--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/session/upload", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=X")
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	filesReq := httptest.NewRequest(http.MethodGet, "/session/sess1/files", nil)
	filesRec := httptest.NewRecorder()
	g.Router().ServeHTTP(filesRec, filesReq)
	require.Contains(t, filesRec.Body.String(), "a.png")
}

func TestHandleRunWithoutDefaultFaceAssetReturns400(t *testing.T) {
	g, backend := testGateway(t)
	defer backend.Close()

	body := `{"prompt": "a cat", "use_default_face": true}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "default face")
}
