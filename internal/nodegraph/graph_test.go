package nodegraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTemplate() Graph {
	return Graph{
		"1": Node{ClassType: "LoadImage", Inputs: map[string]any{"image": "placeholder.png"}},
		"2": Node{ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": ""}, Meta: &NodeMeta{Title: "CLIP Text Encode (Positive)"}},
		"3": Node{ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": "blurry, low quality"}, Meta: &NodeMeta{Title: "CLIP Text Encode (Negative)"}},
		"4": Node{ClassType: "KSampler", Inputs: map[string]any{"seed": 0, "steps": 20, "cfg": 7.0}},
	}
}

func TestRewriteGraphBindsLoadInputPromptAndSeed(t *testing.T) {
	old := RandomSeed
	RandomSeed = func() int64 { return 42 }
	defer func() { RandomSeed = old }()

	template := sampleTemplate()
	binding := GraphBinding{
		LoadInputs:    []LoadTarget{{ClassType: "LoadImage", InputKey: "image"}},
		PromptTargets: []ScalarTarget{{ClassType: "CLIPTextEncode", TitleContains: "Positive", InputKey: "text"}},
		ScalarTargets: map[string]ScalarTarget{
			"steps": {ClassType: "KSampler", InputKey: "steps"},
			"cfg":   {ClassType: "KSampler", InputKey: "cfg"},
		},
		SeedTargets: []ScalarTarget{{ClassType: "KSampler", InputKey: "seed"}},
	}

	out := RewriteGraph(template, binding, RewriteParams{
		StagedFilenames: []string{"staged_abc123.png"},
		Prompt:          "a cozy morning coffee scene",
		Scalars:         map[string]float64{"steps": 30},
	})

	require.Equal(t, "staged_abc123.png", out["1"].Inputs["image"])
	require.Equal(t, "a cozy morning coffee scene", out["2"].Inputs["text"])
	require.Equal(t, "blurry, low quality", out["3"].Inputs["text"]) // negative untouched
	require.Equal(t, float64(30), out["4"].Inputs["steps"])
	require.Equal(t, int64(42), out["4"].Inputs["seed"])

	// original template untouched by the rewrite
	require.Equal(t, "placeholder.png", template["1"].Inputs["image"])
}

func TestRewriteGraphAssignsTwoLoadInputsPositionally(t *testing.T) {
	template := Graph{
		"1": Node{ClassType: "LoadImage", Inputs: map[string]any{"image": ""}},
		"2": Node{ClassType: "LoadImage", Inputs: map[string]any{"image": ""}},
	}
	binding := GraphBinding{
		LoadInputs: []LoadTarget{
			{ClassType: "LoadImage", InputKey: "image"},
			{ClassType: "LoadImage", InputKey: "image"},
		},
	}
	out := RewriteGraph(template, binding, RewriteParams{StagedFilenames: []string{"ref1.png", "ref2.png"}})

	require.Equal(t, "ref1.png", out["1"].Inputs["image"])
	require.Equal(t, "ref2.png", out["2"].Inputs["image"])
}

func TestRewriteGraphUsesSuppliedSeedOverRandom(t *testing.T) {
	template := sampleTemplate()
	binding := GraphBinding{SeedTargets: []ScalarTarget{{ClassType: "KSampler", InputKey: "seed"}}}
	out := RewriteGraph(template, binding, RewriteParams{Seed: 999})
	require.Equal(t, int64(999), out["4"].Inputs["seed"])
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	g := sampleTemplate()
	clone := g.Clone()
	clone["1"].Inputs["image"] = "changed.png"
	require.Equal(t, "placeholder.png", g["1"].Inputs["image"])
}
