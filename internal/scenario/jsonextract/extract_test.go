package jsonextract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type verdict struct {
	Score float64 `json:"score"`
	Pass  bool    `json:"pass"`
}

func TestObjectPlainJSON(t *testing.T) {
	var v verdict
	require.NoError(t, Object(`{"score": 8.5, "pass": true}`, &v))
	require.Equal(t, 8.5, v.Score)
	require.True(t, v.Pass)
}

func TestObjectWithSurroundingProse(t *testing.T) {
	var v verdict
	input := "Sure, here is the verdict:\n```json\n{\"score\": 6, \"pass\": false}\n```\nLet me know if you need anything else."
	require.NoError(t, Object(input, &v))
	require.Equal(t, 6.0, v.Score)
	require.False(t, v.Pass)
}

func TestObjectWithNestedBraces(t *testing.T) {
	var out map[string]any
	input := `prefix {"a": {"b": 1}, "c": "}not a brace{"} suffix`
	require.NoError(t, Object(input, &out))
	require.Equal(t, "}not a brace{", out["c"])
}

func TestObjectNoJSON(t *testing.T) {
	var v verdict
	err := Object("no json here at all", &v)
	require.ErrorIs(t, err, ErrNoJSON)
}
