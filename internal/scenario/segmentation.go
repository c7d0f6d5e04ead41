package scenario

import (
	"math"
	"strings"
)

// DefaultTargetShotLen is the target shot length (seconds) used to derive
// the shot-count target max(4, floor(D/L)) when none is supplied.
const DefaultTargetShotLen = 5.0

// MinFragmentChars is the minimum fragment length (in runes) kept after the
// initial split; shorter fragments are dropped as noise.
const MinFragmentChars = 15

// MinConnectiveTokenChars is the minimum length (in runes) a token produced
// by the connective-morpheme split must have to be kept.
const MinConnectiveTokenChars = 10

// transitionMarkers is the fixed set of Korean scene-transition markers
// , each normalized to a canonical SPLIT boundary.
// Spaced variants (surrounded by single spaces) are included alongside the
// bare form since LLM output inconsistently spaces punctuation-like markers.
var transitionMarkers = []string{
	"화면 전환이 되고",
	"그 다음",
	"이후",
	"다음으로",
	"그리고",
	"->",
	"→",
	"장면 전환",
	" -> ",
	" → ",
}

// connectiveMorphemes are the Korean connective morphemes used to further
// split an over-long fragment when the coarse comma split isn't enough
var connectiveMorphemes = []string{
	"하고", "하며", "그리고", "또한", "이후", "다음", "그 다음",
}

const splitToken = "\x00SCENE_SPLIT\x00"

// SegmentedShot is one chunk of scenario text with its assigned time span,
// produced by Segment before per-shot prompt synthesis fills in the rest of
// the Shot record.
type SegmentedShot struct {
	Index            int
	TimeStart        float64
	TimeEnd          float64
	SceneDescription string
}

// Segment deterministically partitions Korean text into at least 4 shots
// tiling [0, totalSeconds]. targetShotLen <= 0 uses
// DefaultTargetShotLen.
func Segment(text string, totalSeconds float64, targetShotLen float64) []SegmentedShot {
	if targetShotLen <= 0 {
		targetShotLen = DefaultTargetShotLen
	}
	target := int(totalSeconds / targetShotLen) // floor
	if target < 4 {
		target = 4
	}

	fragments := splitOnMarkersAndPeriods(text)
	fragments = dropShortFragments(fragments, MinFragmentChars)

	switch {
	case len(fragments) == 0:
		// fall through to equal-chunk fallback below
	case float64(len(fragments)) > 1.5*float64(target):
		fragments = groupFragments(fragments, target)
	case len(fragments) < target/2:
		fragments = splitFurther(fragments)
	}

	if len(fragments) < 4 {
		fallback := chunkEqual(text, 4)
		if len(fallback) > len(fragments) {
			fragments = fallback
		}
	}
	if len(fragments) == 0 && strings.TrimSpace(text) != "" {
		// Pathological input.
		fragments = []string{strings.TrimSpace(text)}
	}

	return AssignTimes(fragments, totalSeconds)
}

// AssignTimes tiles [0, totalSeconds] across len(fragments) shots:
// time_start[i]=round(i*D/N,2), time_end[i]=round((i+1)*D/N,2), with
// time_end[N-1] forced to D exactly so the tiling never drifts.
func AssignTimes(fragments []string, totalSeconds float64) []SegmentedShot {
	n := len(fragments)
	out := make([]SegmentedShot, n)
	for i, frag := range fragments {
		start := round2(float64(i) * totalSeconds / float64(n))
		end := round2(float64(i+1) * totalSeconds / float64(n))
		if i == n-1 {
			end = totalSeconds
		}
		out[i] = SegmentedShot{
			Index:            i,
			TimeStart:        start,
			TimeEnd:          end,
			SceneDescription: strings.TrimSpace(frag),
		}
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// splitOnMarkersAndPeriods replaces every transition marker with a canonical
// split boundary, then splits on that boundary and on '.'.
func splitOnMarkersAndPeriods(text string) []string {
	replaced := text
	for _, m := range transitionMarkers {
		replaced = strings.ReplaceAll(replaced, m, splitToken)
	}

	var out []string
	for _, chunk := range strings.Split(replaced, splitToken) {
		for _, piece := range strings.Split(chunk, ".") {
			piece = strings.TrimSpace(piece)
			if piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

func dropShortFragments(fragments []string, minChars int) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if len([]rune(f)) >= minChars {
			out = append(out, f)
		}
	}
	return out
}

// groupFragments merges consecutive fragments into groups of floor(len/T)
// each.
func groupFragments(fragments []string, target int) []string {
	groupSize := len(fragments) / target
	if groupSize < 1 {
		groupSize = 1
	}

	var out []string
	for i := 0; i < len(fragments); i += groupSize {
		end := i + groupSize
		if end > len(fragments) {
			end = len(fragments)
		}
		out = append(out, strings.Join(fragments[i:end], ". "))
	}
	return out
}

// splitFurther breaks under-segmented fragments down again: first by
// comma, then around Korean connective morphemes, dropping tokens shorter
// than MinConnectiveTokenChars.
func splitFurther(fragments []string) []string {
	var out []string
	for _, f := range fragments {
		commaParts := strings.Split(f, ",")
		if len(commaParts) > 1 {
			for _, p := range commaParts {
				p = strings.TrimSpace(p)
				if len([]rune(p)) >= MinConnectiveTokenChars {
					out = append(out, p)
				}
			}
			continue
		}

		parts := splitOnConnectives(f)
		if len(parts) > 1 {
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if len([]rune(p)) >= MinConnectiveTokenChars {
					out = append(out, p)
				}
			}
			continue
		}

		out = append(out, f)
	}
	if len(out) == 0 {
		return fragments
	}
	return out
}

func splitOnConnectives(s string) []string {
	replaced := s
	for _, m := range connectiveMorphemes {
		replaced = strings.ReplaceAll(replaced, m, splitToken)
	}
	return strings.Split(replaced, splitToken)
}

// chunkEqual splits text into n equal-length substrings by rune count,
// ignoring sentence boundaries entirely — the fallback of last resort
func chunkEqual(text string, n int) []string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	size := (len(r) + n - 1) / n
	if size < 1 {
		size = 1
	}
	var out []string
	for i := 0; i < len(r); i += size {
		end := i + size
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[i:end]))
	}
	return out
}
