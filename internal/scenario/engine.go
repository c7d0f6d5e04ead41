package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brightloom/adcast/internal/llm"
	"github.com/brightloom/adcast/internal/scenario/jsonextract"
	"github.com/brightloom/adcast/internal/scenario/retry"
)

// MaxRetries is the default bound on both the scenario-validator loop and
// the per-shot dialogue-validator loop.
const MaxRetries = 3

// ContextWindow is how many preceding shots are carried into the per-shot
// prompt as (scene -> dialogue) pairs.
const ContextWindow = 2

// Deps are the engine's external collaborators.
type Deps struct {
	LLM llm.Client
	Log *logrus.Entry
}

// EventChanBuffer bounds how far the producer can run ahead of a slow SSE
// consumer before blocking; the protocol has no internal backpressure
// mechanism beyond this, so it is sized generously.
const EventChanBuffer = 16

// Generate drives the four-stage Scenario→Timetable pipeline
// and returns a channel of events in the exact order: one metadata, N scene
// (index order), then exactly one of complete or error. The channel is
// closed after the terminal event. The producer runs on its own goroutine
// and is the sole writer, so ordering is guaranteed by construction.
func Generate(ctx context.Context, req Request, deps Deps) <-chan Event {
	events := make(chan Event, EventChanBuffer)

	go func() {
		defer close(events)
		log := deps.Log
		if log == nil {
			log = logrus.NewEntry(logrus.StandardLogger())
		}
		log = log.WithField("brand", req.Brand)

		scenarioText, err := synthesizeScenario(ctx, deps.LLM, req)
		if err != nil {
			events <- Event{Kind: EventError, Error: &ErrorEvent{Message: err.Error()}}
			return
		}

		shots := Segment(scenarioText, req.VideoDurationSec, DefaultTargetShotLen)
		if len(shots) == 0 {
			events <- Event{Kind: EventError, Error: &ErrorEvent{Message: "segmentation produced no shots"}}
			return
		}

		events <- Event{Kind: EventMetadata, Metadata: &MetadataEvent{
			TotalDuration: req.VideoDurationSec,
			SceneCount:    len(shots),
			Status:        "started",
		}}

		var recentDialogues []string
		var window []contextPair

		for _, seg := range shots {
			select {
			case <-ctx.Done():
				events <- Event{Kind: EventError, Error: &ErrorEvent{Message: ctx.Err().Error()}}
				return
			default:
			}

			shot := buildShot(ctx, deps.LLM, log, req.Brand, seg, window, recentDialogues)
			events <- Event{Kind: EventScene, Scene: &shot}

			window = append(window, contextPair{SceneDescription: shot.SceneDescription, Dialogue: shot.Dialogue})
			if len(window) > ContextWindow {
				window = window[len(window)-ContextWindow:]
			}
			if strings.TrimSpace(shot.Dialogue) != "" {
				recentDialogues = append(recentDialogues, shot.Dialogue)
				recentDialogues = LastN(recentDialogues, 3)
			}
		}

		events <- Event{Kind: EventComplete, Complete: &CompleteEvent{Status: "completed", TotalScenes: len(shots)}}
	}()

	return events
}

// contextPair is one (scene -> dialogue) entry in the sliding prompt window.
type contextPair struct {
	SceneDescription string
	Dialogue         string
}

const scenarioSystemPrompt = `You write short Korean-language ad-video scenarios for a brand.
Write a 6-7 sentence Korean narrative describing a short ad video for the
given brand, incorporating the user's request if one is given. Use clear
scene-transition language between beats. Return ONLY the Korean narrative
text, no preamble, no JSON, no markdown.`

// synthesizeScenario generates the Korean narrative, then validates it in
// a bounded retry loop, preferring the validator's corrected text.
func synthesizeScenario(ctx context.Context, client llm.Client, req Request) (string, error) {
	userPrompt := fmt.Sprintf("brand: %s", req.Brand)
	if strings.TrimSpace(req.UserQuery) != "" {
		userPrompt += fmt.Sprintf("\nrequest: %s", req.UserQuery)
	}

	type candidate struct {
		text    string
		verdict Verdict
	}

	best, _ := retry.Run(retry.Policy{MaxAttempts: MaxRetries, Threshold: PassThreshold}, func(n int) retry.Result[candidate] {
		resp, err := client.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: scenarioSystemPrompt},
				{Role: llm.RoleUser, Content: userPrompt},
			},
			Temperature: 0.8,
		})
		if err != nil {
			return retry.Result[candidate]{Candidate: candidate{text: ""}, Score: 0}
		}

		text := strings.TrimSpace(resp.Content)
		verdict := ValidateScenario(ctx, client, text)
		if verdict.CorrectedText != "" {
			text = verdict.CorrectedText
		}
		return retry.Result[candidate]{
			Candidate: candidate{text: text, verdict: verdict},
			Score:     verdict.Score,
			Pass:      verdict.Pass,
		}
	})

	if best.Candidate.text == "" {
		return "", fmt.Errorf("scenario synthesis: no usable candidate after %d attempts", MaxRetries)
	}
	return best.Candidate.text, nil
}

// shotSynthCandidate mirrors the structured fields an LLM returns for one
// shot; Index/TimeStart/TimeEnd come from deterministic segmentation, not
// the model.
type shotSynthCandidate struct {
	Dialogue               string          `json:"dialogue"`
	T2IPrompt              T2IPrompt       `json:"t2i_prompt"`
	ImageEditPrompt        ImageEditPrompt `json:"image_edit_prompt"`
	BackgroundSoundsPrompt string          `json:"background_sounds_prompt"`
}

const shotSystemPrompt = `You write structured shot prompts for a short ad-video pipeline.
Given a brand, a Korean scene description, and up to two preceding
(scene -> dialogue) pairs, produce JSON only, no prose, in this exact shape:
{"dialogue": "<1-2 Korean sentences, 해요체 tone>", "t2i_prompt": {"background": "...", "character_pose_and_gaze": "...", "product": "...", "camera_angle": "..."}, "image_edit_prompt": {"pose_change": "...", "gaze_change": "...", "expression": "...", "additional_edits": "..."}, "background_sounds_prompt": "..."}

Never repeat the wording, sentence structure, or adjectives used in the
preceding dialogues — vary lexical choice every shot.`

// buildShot runs stages 3 and 4 for one shot: prompt synthesis with the
// sliding context window, then the dialogue-validator retry loop. It never
// returns an error — on any failure it falls back to defaults, logs, and
// lets the stream continue.
func buildShot(ctx context.Context, client llm.Client, log *logrus.Entry, brand string, seg SegmentedShot, window []contextPair, recentDialogues []string) Shot {
	userPrompt := buildShotUserPrompt(brand, seg.SceneDescription, window)

	best, passed := retry.Run(retry.Policy{MaxAttempts: MaxRetries, Threshold: PassThreshold}, func(n int) retry.Result[shotSynthCandidate] {
		cand, err := synthesizeShotCandidate(ctx, client, userPrompt)
		if err != nil {
			log.WithError(err).WithField("shot_index", seg.Index).Warn("shot prompt synthesis failed, using defaults")
			return retry.Result[shotSynthCandidate]{Candidate: shotSynthCandidate{}, Score: 0}
		}

		verdict := ValidateDialogue(ctx, client, DialogueValidatorInput{
			Candidate:        cand.Dialogue,
			SceneDescription: seg.SceneDescription,
			RecentDialogues:  recentDialogues,
		})
		return retry.Result[shotSynthCandidate]{Candidate: cand, Score: verdict.Score, Pass: verdict.Pass}
	})
	if !passed {
		log.WithField("shot_index", seg.Index).WithField("best_score", best.Score).
			Info("dialogue validator did not pass within max retries, emitting best attempt")
	}

	return Shot{
		Index:                  seg.Index,
		TimeStart:              seg.TimeStart,
		TimeEnd:                seg.TimeEnd,
		SceneDescription:       seg.SceneDescription,
		Dialogue:               best.Candidate.Dialogue,
		T2IPrompt:              best.Candidate.T2IPrompt,
		ImageEditPrompt:        best.Candidate.ImageEditPrompt,
		BackgroundSoundsPrompt: best.Candidate.BackgroundSoundsPrompt,
	}
}

func buildShotUserPrompt(brand, sceneDescription string, window []contextPair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "brand: %s\nscene_description: %s\n", brand, sceneDescription)
	if len(window) == 0 {
		b.WriteString("preceding_shots: none\n")
	} else {
		b.WriteString("preceding_shots:\n")
		for _, c := range window {
			fmt.Fprintf(&b, "- scene: %s | dialogue: %s\n", c.SceneDescription, c.Dialogue)
		}
	}
	return b.String()
}

func synthesizeShotCandidate(ctx context.Context, client llm.Client, userPrompt string) (shotSynthCandidate, error) {
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: shotSystemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		Temperature: 0.9,
	})
	if err != nil {
		return shotSynthCandidate{}, fmt.Errorf("shot synthesis: %w", err)
	}

	var cand shotSynthCandidate
	if err := jsonextract.Object(resp.Content, &cand); err != nil {
		return shotSynthCandidate{}, fmt.Errorf("shot synthesis: %w", err)
	}
	return cand, nil
}
