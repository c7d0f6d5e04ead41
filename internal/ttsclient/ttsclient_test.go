package ttsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeTTSBackend(t *testing.T, wantVoiceID string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/text-to-speech/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if wantVoiceID != "" && r.URL.Path != "/text-to-speech/"+wantVoiceID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-audio-bytes"))
	})
	return httptest.NewServer(mux)
}

func TestGenerateUsesConfiguredVoiceByDefault(t *testing.T) {
	backend := fakeTTSBackend(t, "default-voice")
	defer backend.Close()

	c, err := New(Config{APIKey: "key", VoiceID: "default-voice", ModelID: "model-a", BaseURL: backend.URL}, nil)
	require.NoError(t, err)

	data, err := c.Generate(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, "fake-audio-bytes", string(data))
}

func TestGeneratePerRequestVoiceOverridesDefault(t *testing.T) {
	backend := fakeTTSBackend(t, "override-voice")
	defer backend.Close()

	c, err := New(Config{APIKey: "key", VoiceID: "default-voice", ModelID: "model-a", BaseURL: backend.URL}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{Text: "hello", VoiceID: "override-voice"})
	require.NoError(t, err)
}

func TestGenerateSurfacesNon200AsUpstreamError(t *testing.T) {
	backend := fakeTTSBackend(t, "pinned-voice")
	defer backend.Close()

	c, err := New(Config{APIKey: "key", VoiceID: "other-voice", BaseURL: backend.URL}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{Text: "hi"})
	require.Error(t, err)
}

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	_, err := New(Config{VoiceID: "v"}, nil)
	require.Error(t, err)
}
