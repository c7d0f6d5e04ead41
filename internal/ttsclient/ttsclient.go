// Package ttsclient implements the Audio Gateway's text-to-speech client:
// an API-key-authenticated REST call with an optional per-request
// voice_id/model_id override over the gateway's configured defaults,
// spoken directly over net/http.
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brightloom/adcast/internal/apierr"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

// Config holds the Audio Gateway's TTS defaults, read from the
// TTS_API_KEY, TTS_VOICE_ID, and TTS_MODEL_ID environment variables at
// startup.
type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
}

// Client is a small REST client for the TTS backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs a Client. cfg.BaseURL defaults to the production
// ElevenLabs API when empty.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ttsclient: APIKey must not be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// Request is one text-to-speech generation call. VoiceID/ModelID, when
// set, override the gateway's configured defaults for this call only.
type Request struct {
	Text    string
	VoiceID string
	ModelID string
}

// Generate synthesizes speech for req and returns the raw audio bytes.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.cfg.ModelID
	}

	body, err := json.Marshal(map[string]string{
		"text":     req.Text,
		"model_id": modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("ttsclient: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.cfg.BaseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ttsclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.NewUpstream(err, "tts generate")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.NewUpstream(err, "tts generate: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.NewUpstream(fmt.Errorf("tts: status %d", resp.StatusCode), string(raw))
	}
	return raw, nil
}
