// Package telemetry wires Sentry error tracking into every gateway process.
//
// Usage in main.go:
//
//	telemetry.InitSentry(os.Getenv("SENTRY_DSN"), "imagegw", version)
//	defer telemetry.Flush()
//
// Usage in handlers:
//
//	telemetry.CaptureError(err, map[string]string{
//	    "gateway":    "imagegw",
//	    "session_id": sessionID,
//	    "operation":  "run",
//	})
package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry initializes the Sentry SDK for a named gateway.
// Call once at process startup. dsn may be empty — Sentry is then disabled
// and every other function in this package becomes a safe no-op.
// release should be the build version or git SHA.
func InitSentry(dsn, gatewayName, release string) error {
	env := os.Getenv("ADCAST_ENV")
	if env == "" {
		env = "development"
	}

	if dsn == "" {
		fmt.Fprintf(os.Stderr, "[telemetry] SENTRY_DSN not set — Sentry disabled for %s\n", gatewayName)
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,

		// Sample 20% of transactions for performance monitoring.
		TracesSampleRate: 0.2,

		// Attach stack traces to all captured messages, not just panics.
		AttachStacktrace: true,

		Tags: map[string]string{
			"gateway": gatewayName,
		},

		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrubSecrets(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	return nil
}

// CaptureError sends an error to Sentry with optional context tags.
// tags typically include: gateway, session_id, project_id, operation.
// Safe to call when Sentry is disabled.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CaptureMessage sends a non-error message to Sentry (e.g. sweeper summary).
func CaptureMessage(message string, level sentry.Level, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(message)
	})
}

// Flush waits for buffered Sentry events to be sent.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// PanicRecoveryMiddleware catches panics, reports them to Sentry with
// request context, and returns a 500 response instead of crashing the
// gateway process.
func PanicRecoveryMiddleware(gatewayName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					hub := sentry.CurrentHub().Clone()
					hub.Scope().SetRequest(r)
					hub.Scope().SetTag("gateway", gatewayName)
					hub.Scope().SetTag("panic", "true")

					var err error
					switch v := rec.(type) {
					case error:
						err = v
					default:
						err = fmt.Errorf("panic: %v", v)
					}
					hub.CaptureException(err)
					hub.Flush(2 * time.Second)

					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// scrubSecrets removes API keys, backend URLs with embedded credentials, and
// auth-shaped headers from a Sentry event before it is transmitted. This
// system has no user auth, but it does hold TTS provider API keys and
// backend node-graph URLs that must never leave the process in full.
func scrubSecrets(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	if event.Request != nil {
		for k := range event.Request.Headers {
			switch k {
			case "Authorization", "X-Api-Key", "X-Tts-Api-Key":
				event.Request.Headers[k] = "[redacted]"
			}
		}
	}
	return event
}
