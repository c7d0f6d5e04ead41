package nodegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brightloom/adcast/internal/apierr"
)

// Client talks to one node-graph backend instance. ClientID must be unique per gateway process so
// the progress phase can filter frames belonging to other processes
// sharing the same backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	ClientID   string
}

// NewClient constructs a Client with a fresh, process-unique client id.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		ClientID:   uuid.NewString(),
	}
}

func (c *Client) wsURL() string {
	u := c.BaseURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return fmt.Sprintf("%s/ws?clientId=%s", u, url.QueryEscape(c.ClientID))
}

// UploadKind selects the backend's multipart upload endpoint.
type UploadKind string

const (
	UploadImage UploadKind = "image"
	UploadAudio UploadKind = "audio"
	UploadVideo UploadKind = "video"
)

// Upload stages one input file against the backend
// and returns the backend's internal staged name, which MUST be rebound
// into the graph by RewriteGraph.
func (c *Client) Upload(ctx context.Context, kind UploadKind, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile(string(kind), filename)
	if err != nil {
		return "", fmt.Errorf("nodegraph: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("nodegraph: copy upload body: %w", err)
	}
	if err := mw.WriteField("overwrite", "true"); err != nil {
		return "", fmt.Errorf("nodegraph: write overwrite field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("nodegraph: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload/"+string(kind), &body)
	if err != nil {
		return "", fmt.Errorf("nodegraph: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.NewUpstream(err, "upload phase")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", apierr.NewUpstream(fmt.Errorf("upload: status %d", resp.StatusCode), string(raw))
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Name == "" {
		return filename, nil
	}
	return out.Name, nil
}

// Queue submits graph to the backend's prompt queue.
// Non-200 responses, including backend-structured node_errors, are
// surfaced verbatim in the returned error's detail.
func (c *Client) Queue(ctx context.Context, graph Graph) (promptID string, err error) {
	payload := map[string]any{
		"prompt":    graph,
		"client_id": c.ClientID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("nodegraph: marshal queue payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/prompt", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("nodegraph: build queue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.NewUpstream(err, "queue phase")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", apierr.NewUpstream(fmt.Errorf("queue: status %d", resp.StatusCode), string(body))
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apierr.NewUpstream(err, "queue: unparseable response: "+string(body))
	}
	return out.PromptID, nil
}

// ErrConnDropped marks a progress WebSocket that closed before completion
// was reported. Run treats it as transient and polls history once before
// surfacing the failure.
var ErrConnDropped = errors.New("nodegraph: progress connection dropped")

// frame is the subset of backend WebSocket frame shapes this protocol
// actually consumes.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type executingData struct {
	PromptID string  `json:"prompt_id"`
	Node     *string `json:"node"`
}

type progressData struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

// ProgressFunc is invoked at each 10% progress increment.
type ProgressFunc func(value, max int)

// AwaitCompletion opens the backend progress WebSocket and blocks until the
// given prompt_id reports completion, a deadline expires, or the backend
// raises execution_error. Frames belonging to other prompt_ids or other
// clients sharing the backend are ignored.
func (c *Client) AwaitCompletion(ctx context.Context, promptID string, onProgress ProgressFunc) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return apierr.NewUpstream(err, "progress phase: websocket dial")
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		lastDecile := -1
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				done <- apierr.NewUpstream(fmt.Errorf("%w: %v", ErrConnDropped, err), "progress phase: websocket read")
				return
			}

			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue // binary or malformed frame: discard
			}

			switch f.Type {
			case "execution_start", "execution_cached":
				// informational only
			case "executing":
				var d executingData
				if err := json.Unmarshal(f.Data, &d); err != nil {
					continue
				}
				if d.PromptID == promptID && d.Node == nil {
					done <- nil
					return
				}
			case "progress":
				var d progressData
				if err := json.Unmarshal(f.Data, &d); err != nil || d.Max == 0 {
					continue
				}
				decile := (d.Value * 10) / d.Max
				if decile != lastDecile && onProgress != nil {
					onProgress(d.Value, d.Max)
					lastDecile = decile
				}
			case "execution_error":
				var d struct {
					PromptID string `json:"prompt_id"`
				}
				_ = json.Unmarshal(f.Data, &d)
				if d.PromptID == "" || d.PromptID == promptID {
					done <- apierr.NewUpstream(fmt.Errorf("backend execution_error"), string(f.Data))
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		return apierr.NewTimeout(http.StatusInternalServerError, "progress phase: %s", ctx.Err())
	case err := <-done:
		return err
	}
}

// HistoryOutput is one media output referenced from a history entry,
// walked out of the {images, gifs} output keys.
type HistoryOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// FetchOutputs retrieves the prompt's history entry and collects every
// image/gif output reference across all nodes.
func (c *Client) FetchOutputs(ctx context.Context, promptID string) ([]HistoryOutput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, fmt.Errorf("nodegraph: build history request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierr.NewUpstream(err, "fetch phase: history")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.NewUpstream(fmt.Errorf("history: status %d", resp.StatusCode), string(raw))
	}

	var history map[string]struct {
		Outputs map[string]struct {
			Images []HistoryOutput `json:"images"`
			Gifs   []HistoryOutput `json:"gifs"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, apierr.NewUpstream(err, "fetch phase: unparseable history")
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, apierr.NewUpstream(fmt.Errorf("no history entry for prompt %s", promptID), "")
	}

	var outputs []HistoryOutput
	for _, node := range entry.Outputs {
		outputs = append(outputs, node.Images...)
		outputs = append(outputs, node.Gifs...)
	}
	return outputs, nil
}

// DownloadOutput fetches the raw bytes of one history output via /view.
func (c *Client) DownloadOutput(ctx context.Context, out HistoryOutput) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", out.Filename)
	q.Set("subfolder", out.Subfolder)
	q.Set("type", out.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("nodegraph: build view request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierr.NewUpstream(err, "fetch phase: view")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.NewUpstream(err, "fetch phase: read view body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.NewUpstream(fmt.Errorf("view: status %d", resp.StatusCode), string(raw))
	}
	return raw, nil
}

// Run drives the full upload-through-fetch protocol for a single staged
// input set and returns the raw bytes of the first collected output, ready
// for Persist. timeout bounds the whole run.
func (c *Client) Run(ctx context.Context, template Graph, binding GraphBinding, params RewriteParams, timeout time.Duration, onProgress ProgressFunc) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	graph := RewriteGraph(template, binding, params)

	promptID, err := c.Queue(runCtx, graph)
	if err != nil {
		return nil, err
	}

	waitErr := c.AwaitCompletion(runCtx, promptID, onProgress)
	if waitErr != nil && !errors.Is(waitErr, ErrConnDropped) {
		// Timeouts and backend execution errors are final. Only a dropped
		// WebSocket is transient — the backend may well have finished the
		// work, so fall through and poll history once.
		return nil, waitErr
	}

	outputs, err := c.FetchOutputs(runCtx, promptID)
	if err != nil || len(outputs) == 0 {
		if waitErr == nil {
			// Completion was reported but history lagged; poll once more.
			select {
			case <-runCtx.Done():
				return nil, apierr.NewTimeout(http.StatusInternalServerError, "fetch phase: %s", runCtx.Err())
			case <-time.After(2 * time.Second):
			}
			outputs, err = c.FetchOutputs(runCtx, promptID)
		}
	}
	if waitErr != nil && (err != nil || len(outputs) == 0) {
		return nil, waitErr
	}
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, apierr.NewUpstream(fmt.Errorf("no outputs produced for prompt %s", promptID), "")
	}

	return c.DownloadOutput(runCtx, outputs[0])
}

// OutputFilename builds a persisted output filename: timestamp + short
// UUID, suffixed by media kind.
func OutputFilename(now time.Time, kind string) string {
	short := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s.%s", strconv.FormatInt(now.Unix(), 10), short, kind)
}
