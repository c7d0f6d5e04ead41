package logging

import "net/url"

// SafeURL returns a URL safe for logging: scheme://host/... with the path,
// query string and any credentials stripped. Backend source URLs and signed
// TTS/asset URLs frequently carry tokens or account identifiers in the path
// or query and must never be written to a log line in full.
func SafeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

// Truncate shortens s to at most n runes, appending an ellipsis marker when
// truncated. Used to keep LLM prompts and generated Korean text out of log
// lines at full length while still leaving something greppable.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
