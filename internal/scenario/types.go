// Package scenario implements the Scenario→Timetable Engine:
// scenario synthesis, deterministic shot segmentation, per-shot prompt
// synthesis with a sliding context window, dialogue validation with bounded
// retry, and a streaming event protocol suitable for SSE delivery.
package scenario

// T2IPrompt is the structured English prompt handed to the Image Gateway.
type T2IPrompt struct {
	Background           string `json:"background"`
	CharacterPoseAndGaze string `json:"character_pose_and_gaze"`
	Product              string `json:"product"`
	CameraAngle          string `json:"camera_angle"`
}

// ImageEditPrompt is the structured English prompt handed to the Image
// Gateway's multi-reference edit path.
type ImageEditPrompt struct {
	PoseChange      string `json:"pose_change"`
	GazeChange      string `json:"gaze_change"`
	Expression      string `json:"expression"`
	AdditionalEdits string `json:"additional_edits"`
}

// Shot is one ordered entry in a Timetable.
type Shot struct {
	Index                  int             `json:"index"`
	TimeStart              float64         `json:"time_start"`
	TimeEnd                float64         `json:"time_end"`
	SceneDescription       string          `json:"scene_description"`
	Dialogue               string          `json:"dialogue"`
	T2IPrompt              T2IPrompt       `json:"t2i_prompt"`
	ImageEditPrompt        ImageEditPrompt `json:"image_edit_prompt"`
	BackgroundSoundsPrompt string          `json:"background_sounds_prompt"`
}

// Timetable is the ordered tiling of [0, TotalDuration] into Shots.
type Timetable struct {
	TotalDuration float64 `json:"total_duration"`
	SceneCount    int     `json:"scene_count"`
	Shots         []Shot  `json:"shots"`
}

// Verdict is the fixed JSON return shape both validators produce:
// {score, pass, issues[], reason, corrected_text?}.
type Verdict struct {
	Score         float64  `json:"score"`
	Pass          bool     `json:"pass"`
	Issues        []string `json:"issues,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	CorrectedText string   `json:"corrected_text,omitempty"`
}

// PassThreshold is the quality bar both validators and the retry loop
// use: score >= 7/10.
const PassThreshold = 7.0

// Request is the input to Generate: (brand, user_query?,
// video_duration_sec).
type Request struct {
	Brand            string
	UserQuery        string
	VideoDurationSec float64
}

// EventKind tags the union of streaming events.
type EventKind string

const (
	EventMetadata EventKind = "metadata"
	EventScene    EventKind = "scene"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is one unit of the streaming protocol. Exactly one of the typed
// fields is populated, selected by Kind.
type Event struct {
	Kind EventKind `json:"-"`

	Metadata *MetadataEvent `json:"-"`
	Scene    *Shot          `json:"-"`
	Complete *CompleteEvent `json:"-"`
	Error    *ErrorEvent    `json:"-"`
}

// MetadataEvent is emitted once before any shot.
type MetadataEvent struct {
	TotalDuration float64 `json:"total_duration"`
	SceneCount    int     `json:"scene_count"`
	Status        string  `json:"status"`
}

// CompleteEvent is emitted once after the last shot.
type CompleteEvent struct {
	Status      string `json:"status"`
	TotalScenes int    `json:"total_scenes"`
}

// ErrorEvent terminates the stream on fatal failure.
type ErrorEvent struct {
	Message string `json:"message"`
}
