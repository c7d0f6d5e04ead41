package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightloom/adcast/internal/llm"
	"github.com/brightloom/adcast/internal/scenario/jsonextract"
)

// ValidatorTemperature is the fixed low-variance sampling temperature used
// for both validators.
const ValidatorTemperature = 0.3

// neutralPassVerdict is returned whenever the validator LLM call fails or
// produces unparseable JSON. This is a deliberate liveness choice — a
// validator that can deadlock the pipeline on a malformed response is worse
// than one that occasionally lets a mediocre candidate through — preserved
// here explicitly rather than buried in an error branch.
func neutralPassVerdict(reason string) Verdict {
	return Verdict{Score: 7.0, Pass: true, Reason: reason}
}

const scenarioValidatorSystemPrompt = `You are a Korean-language grammar validator for short ad-video scenarios.
Score the given text from 0 to 10 and return JSON only, no prose, in this
exact shape:
{"score": <0-10>, "pass": <bool>, "issues": [<string>...], "reason": "<string>", "corrected_text": "<string, optional>"}

Evaluate:
- Korean spacing (띄어쓰기) is well-formed.
- No sentence fragments; every sentence is grammatically complete.
- Verb tenses are connected and consistent across sentences.

pass must be true only when score >= 7. If you would fix minor issues,
include the fixed text as corrected_text.`

// ValidateScenario runs the scenario grammar validator. On an unparseable
// or failed LLM call it defaults to pass with a neutral score, per the
// documented liveness rule.
func ValidateScenario(ctx context.Context, client llm.Client, text string) Verdict {
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: scenarioValidatorSystemPrompt},
			{Role: llm.RoleUser, Content: text},
		},
		Temperature: ValidatorTemperature,
	})
	if err != nil {
		return neutralPassVerdict("validator call failed: " + err.Error())
	}

	var v Verdict
	if err := jsonextract.Object(resp.Content, &v); err != nil {
		return neutralPassVerdict("validator returned unparseable JSON")
	}
	return v
}

const dialogueValidatorSystemPrompt = `You are a Korean dialogue-quality validator for short-form ad video shots.
Score the candidate dialogue line from 0 to 10 and return JSON only, no
prose, in this exact shape:
{"score": <0-10>, "pass": <bool>, "issues": [<string>...], "reason": "<string>", "corrected_text": "<string, optional>"}

Evaluate against ALL of:
1. 1-2 sentences, 10-50 Korean characters.
2. Not a near-duplicate (same sentiment/structure) of any of the recent
 dialogues listed below.
3. Topically consistent with the scene description.
4. 해요체 tone — conversational polite register, never formal written
 register, never a narrative or vlog-style opening line.
5. No elongated hesitation sounds (e.g. "음...", "어어...").
6. Lexically varied compared to the recent dialogues — don't reuse the
 same adjective/ending pattern.

pass must be true only when score >= 7.`

// DialogueValidatorInput is the context a single dialogue candidate is
// scored against.
type DialogueValidatorInput struct {
	Candidate        string
	SceneDescription string
	RecentDialogues  []string // most recent last-3 dialogues, oldest first
}

// ValidateDialogue runs the per-shot dialogue validator.
// An empty candidate short-circuits to a pass without calling the LLM.
func ValidateDialogue(ctx context.Context, client llm.Client, in DialogueValidatorInput) Verdict {
	if strings.TrimSpace(in.Candidate) == "" {
		return Verdict{Score: 10.0, Pass: true, Reason: "empty dialogue"}
	}

	recent := "none"
	if len(in.RecentDialogues) > 0 {
		recent = strings.Join(in.RecentDialogues, " | ")
	}

	userPrompt := fmt.Sprintf(
		"scene_description: %s\nrecent_dialogues: %s\ncandidate: %s",
		in.SceneDescription, recent, in.Candidate,
	)

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: dialogueValidatorSystemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		Temperature: ValidatorTemperature,
	})
	if err != nil {
		return neutralPassVerdict("validator call failed: " + err.Error())
	}

	var v Verdict
	if err := jsonextract.Object(resp.Content, &v); err != nil {
		return neutralPassVerdict("validator returned unparseable JSON")
	}
	return v
}

// LastN returns up to n of the most recent dialogues (oldest first), the
// sliding window the dialogue validator checks near-duplicates against
func LastN(dialogues []string, n int) []string {
	if len(dialogues) <= n {
		return dialogues
	}
	return dialogues[len(dialogues)-n:]
}
