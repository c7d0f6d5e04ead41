// Package sse adapts the Scenario→Timetable engine's event channel to a
// server-sent-events HTTP response.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/brightloom/adcast/internal/scenario"
)

// namedPayload is the wire-shape written for each event: the event kind
// alongside its one populated field, so clients parse one JSON object per
// `data:` line without needing the SSE `event:` field.
type namedPayload struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Stream consumes events from ch and writes them to w as
// text/event-stream, one JSON object per "data:" line, until the channel
// closes or the request context is cancelled. It sets the headers required
// to disable intermediary buffering.
func Stream(w http.ResponseWriter, r *http.Request, log *logrus.Entry, ch <-chan scenario.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				log.WithError(err).Warn("sse: failed writing event, aborting stream")
				return
			}
			flusher.Flush()
			if ev.Kind == scenario.EventComplete || ev.Kind == scenario.EventError {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev scenario.Event) error {
	payload := namedPayload{Type: string(ev.Kind)}
	switch ev.Kind {
	case scenario.EventMetadata:
		payload.Data = ev.Metadata
	case scenario.EventScene:
		payload.Data = ev.Scene
	case scenario.EventComplete:
		payload.Data = ev.Complete
	case scenario.EventError:
		payload.Data = ev.Error
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
