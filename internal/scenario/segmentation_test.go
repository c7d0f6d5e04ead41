package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignTimesTilesExactlyFiveShotsOfFiveSeconds(t *testing.T) {
	fragments := []string{"a", "b", "c", "d", "e"}
	shots := AssignTimes(fragments, 25)
	require.Len(t, shots, 5)
	for i, s := range shots {
		require.Equal(t, float64(i)*5.0, s.TimeStart)
		require.Equal(t, float64(i+1)*5.0, s.TimeEnd)
	}
	require.Equal(t, 25.0, shots[4].TimeEnd)
}

func TestAssignTimesTilesFourShotsForShortDuration(t *testing.T) {
	fragments := []string{"a", "b", "c", "d"}
	shots := AssignTimes(fragments, 3)
	require.Len(t, shots, 4)
	require.Equal(t, 0.0, shots[0].TimeStart)
	require.Equal(t, 0.75, shots[0].TimeEnd)
	require.Equal(t, 0.75, shots[1].TimeStart)
	require.Equal(t, 1.5, shots[1].TimeEnd)
	require.Equal(t, 2.25, shots[2].TimeStart)
	require.Equal(t, 3.0, shots[3].TimeEnd)
}

func TestAssignTimesForcesLastEndToExactDuration(t *testing.T) {
	// 7 fragments over 10s produces a repeating fraction; the final shot
	// must still land on exactly D, not a rounded approximation.
	fragments := make([]string, 7)
	for i := range fragments {
		fragments[i] = "x"
	}
	shots := AssignTimes(fragments, 10)
	require.Equal(t, 10.0, shots[len(shots)-1].TimeEnd)
}

func TestSegmentTargetsFourShotsWhenDurationBelowShotLength(t *testing.T) {
	shots := Segment("짧은 광고 문구입니다.", 3, DefaultTargetShotLen)
	require.GreaterOrEqual(t, len(shots), 4)
	require.Equal(t, 3.0, shots[len(shots)-1].TimeEnd)
}

func TestSegmentSplitsOnTransitionMarkers(t *testing.T) {
	text := "아침에 일어나 커피를 내리는 장면으로 시작한다 그리고 출근길 지하철에서 휴대폰을 보는 모습을 보여준다 그 다음 사무실에 도착해 동료와 인사를 나누는 장면이 이어진다 이후 점심시간에 동료들과 식사하는 모습을 담는다 다음으로 퇴근 후 집에서 휴식을 취하는 장면으로 마무리한다"
	shots := Segment(text, 25, 5)
	require.GreaterOrEqual(t, len(shots), 4)
	for _, s := range shots {
		require.NotEmpty(t, s.SceneDescription)
	}
	require.Equal(t, 25.0, shots[len(shots)-1].TimeEnd)
}

func TestSegmentDropsFragmentsShorterThanMinimum(t *testing.T) {
	text := strings.Repeat("그리고 ", 1) + "짧음." + " 그리고 " + strings.Repeat("가", 20) + "."
	shots := Segment(text, 20, 5)
	for _, s := range shots {
		require.NotEqual(t, "짧음", s.SceneDescription)
	}
}

func TestSegmentFallsBackToEqualChunksOnPathologicalInput(t *testing.T) {
	text := strings.Repeat("가", 8) // shorter than MinFragmentChars, no periods
	shots := Segment(text, 20, 5)
	require.GreaterOrEqual(t, len(shots), 1)
}
