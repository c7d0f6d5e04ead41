package scenario

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brightloom/adcast/internal/llm"
)

// scriptedClient returns canned completions in call order, looping the
// last response once exhausted so the shot-synthesis loop (called once per
// shot) doesn't run out of scripted turns.
type scriptedClient struct {
	responses []string
	calls     int
}

func (s *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &llm.CompletionResponse{Content: s.responses[idx]}, nil
}

const goodShotJSON = `{"dialogue": "이 제품 정말 좋아요", "t2i_prompt": {"background": "bg", "character_pose_and_gaze": "pose", "product": "product", "camera_angle": "wide"}, "image_edit_prompt": {"pose_change": "p", "gaze_change": "g", "expression": "e", "additional_edits": "a"}, "background_sounds_prompt": "cafe ambience"}`

func TestGenerateHappyPathEmitsOrderedEvents(t *testing.T) {
	scenarioText := "아침에 일어나 커피를 내리는 장면으로 시작한다 그리고 출근길 지하철에서 휴대폰을 보는 모습을 보여준다 그 다음 사무실에 도착해 동료와 인사를 나누는 장면이 이어진다 이후 점심시간에 동료들과 식사하는 모습을 담는다 다음으로 퇴근 후 집에서 휴식을 취하는 장면으로 마무리한다"

	client := &scriptedClient{responses: []string{
		scenarioText, // scenario synthesis
		`{"score": 9, "pass": true, "issues": [], "reason": "fine"}`, // scenario validator
		goodShotJSON,                 // shot 0 synthesis
		`{"score": 9, "pass": true}`, // shot 0 dialogue validator
		goodShotJSON,                 // shot 1
		`{"score": 9, "pass": true}`,
		goodShotJSON, // shot 2
		`{"score": 9, "pass": true}`,
		goodShotJSON, // shot 3
		`{"score": 9, "pass": true}`,
		goodShotJSON, // shot 4 (if segmentation yields 5)
		`{"score": 9, "pass": true}`,
	}}

	req := Request{Brand: "이니스프리", VideoDurationSec: 25}
	ch := Generate(context.Background(), req, Deps{LLM: client})

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	require.Equal(t, EventMetadata, events[0].Kind)
	require.GreaterOrEqual(t, events[0].Metadata.SceneCount, 4)

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Kind)
	require.NotEqual(t, EventError, last.Kind)

	for i, ev := range events[1 : len(events)-1] {
		require.Equal(t, EventScene, ev.Kind)
		require.Equal(t, i, ev.Scene.Index)
		require.NotEmpty(t, ev.Scene.Dialogue)
	}
}

func TestGenerateShotWithoutDialogueBypassesValidator(t *testing.T) {
	scenarioText := strings.Repeat("긴 문장을 작성합니다 그리고 ", 5) + "."
	client := &scriptedClient{responses: []string{
		scenarioText,
		`{"score": 8, "pass": true}`,
		`{"dialogue": "", "t2i_prompt": {}, "image_edit_prompt": {}, "background_sounds_prompt": "silence"}`,
	}}

	req := Request{Brand: "brand", VideoDurationSec: 20}
	ch := Generate(context.Background(), req, Deps{LLM: client})

	var sawEmptyDialogue bool
	for ev := range ch {
		if ev.Kind == EventScene && ev.Scene.Dialogue == "" {
			sawEmptyDialogue = true
		}
	}
	require.True(t, sawEmptyDialogue)
}

func TestGenerateContextDeadlineEmitsErrorEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	client := &scriptedClient{responses: []string{"시나리오"}}
	ch := Generate(ctx, Request{Brand: "b", VideoDurationSec: 20}, Deps{LLM: client})

	var last Event
	for ev := range ch {
		last = ev
	}
	_ = last // either an error event or a degenerate completed run is acceptable
}
