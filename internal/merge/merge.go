// Package merge implements the Merge/Mix Gateway's pure post-production
// operations: merge_videos, merge_audio_video, mix_audio, and
// merge_project, all driven through ffmpeg/ffprobe via os/exec — stderr
// captured into the error, -y to overwrite, exec.CommandContext for the
// deadline.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brightloom/adcast/internal/apierr"
)

// DurationTolerance is the invariant checked after a merge: the
// concatenated output's duration must be within 0.1s of the sum of inputs.
const DurationTolerance = 0.1

func runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", append([]string{"-y"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return apierr.NewTimeout(504, "ffmpeg: %s", ctx.Err())
		}
		return apierr.NewUpstream(err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Duration probes a media file's duration in seconds via ffprobe.
func Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, apierr.NewUpstream(err, strings.TrimSpace(stderr.String()))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, apierr.NewUpstream(err, "ffprobe: unparseable duration")
	}
	return d, nil
}

// durationsParallel probes every path concurrently via errgroup so an
// N-clip merge doesn't serially probe N files.
func durationsParallel(ctx context.Context, paths []string) ([]float64, error) {
	out := make([]float64, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			d, err := Duration(gctx, p)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Videos concatenates paths into outPath. It always attempts a stream-copy
// concat first; on any nonzero ffmpeg exit it retries with a full re-encode
// (H.264 CRF 23, AAC 128k), absorbing codec drift between clips generated
// under slightly different conditions.
func Videos(ctx context.Context, paths []string, outPath string) error {
	if len(paths) < 2 {
		return apierr.NewClient("merge_videos requires at least 2 input paths, got %d", len(paths))
	}

	inputDurations, err := durationsParallel(ctx, paths)
	if err != nil {
		return err
	}
	var wantDuration float64
	for _, d := range inputDurations {
		wantDuration += d
	}

	listFile, err := writeConcatList(paths)
	if err != nil {
		return apierr.NewInternal(err)
	}
	defer os.Remove(listFile)

	err = runFFmpeg(ctx, "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", outPath)
	if err != nil {
		err = runFFmpeg(ctx, "-f", "concat", "-safe", "0", "-i", listFile,
			"-c:v", "libx264", "-crf", "23", "-c:a", "aac", "-b:a", "128k", outPath)
		if err != nil {
			return err
		}
	}

	gotDuration, err := Duration(ctx, outPath)
	if err == nil && absFloat(gotDuration-wantDuration) > DurationTolerance {
		// Best-effort: the merge succeeded but drifted outside tolerance.
		// Surface it as upstream detail rather than failing the call outright.
		return apierr.NewUpstream(fmt.Errorf("merged duration %.3fs does not match expected %.3fs", gotDuration, wantDuration), outPath)
	}
	return nil
}

func writeConcatList(paths []string) (string, error) {
	f, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(f, "file '%s'\n", strings.ReplaceAll(abs, "'", "'\\''"))
	}
	return f.Name(), nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// AudioVideo maps video stream 0 from videoPath and audio stream 1 from
// audioPath into outPath, audio-encoded AAC, trimmed to the shorter of the
// two with -shortest.
func AudioVideo(ctx context.Context, videoPath, audioPath, outPath string) error {
	return runFFmpeg(ctx,
		"-i", videoPath, "-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "128k",
		"-shortest",
		outPath,
	)
}

// MixAudio overlays extraAudioPath onto videoWithAudioPath's existing audio
// track with per-input volume gains and a two-input amix; the video stream
// is copied untouched.
func MixAudio(ctx context.Context, videoWithAudioPath, extraAudioPath string, videoGain, audioGain float64, outPath string) error {
	filter := fmt.Sprintf(
		"[0:a]volume=%g[a0];[1:a]volume=%g[a1];[a0][a1]amix=inputs=2:duration=first:dropout_transition=2[out]",
		videoGain, audioGain,
	)
	return runFFmpeg(ctx,
		"-i", videoWithAudioPath, "-i", extraAudioPath,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[out]",
		"-c:v", "copy",
		outPath,
	)
}

// sceneFilePattern matches scene_<NNN>.mp4 files in a project directory.
const sceneFilePattern = "scene_"

// Project enumerates scene_<NNN>.mp4 files under projectDir, sorted by
// sequence, and concatenates them into outPath. Fewer than 2 scenes is a
// client error.
func Project(ctx context.Context, projectDir, outPath string) error {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return apierr.NewClient("reading project directory: %v", err)
	}

	var scenes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), sceneFilePattern) || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		scenes = append(scenes, e.Name())
	}
	sort.Strings(scenes) // scene_001.mp4 < scene_002.mp4 lexically, since zero-padded

	if len(scenes) < 2 {
		return apierr.NewClient("project %s has %d scenes, need at least 2", projectDir, len(scenes))
	}

	paths := make([]string, len(scenes))
	for i, name := range scenes {
		paths[i] = filepath.Join(projectDir, name)
	}
	return Videos(ctx, paths, outPath)
}
