package dataset

import (
	"path"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

//writeTestVideo produces a small MJPG clip with the given number of frames.
//Each frame gets a distinct gray level so decoded frames stay distinguishable
func writeTestVideo(t *testing.T, videoPath string, frames int) {
	t.Helper()

	writer, err := gocv.VideoWriterFile(videoPath, "MJPG", 30, 64, 48, true)
	require.NoError(t, err)
	defer writer.Close()

	for i := 0; i < frames; i++ {
		level := float64(i % 200)
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), 48, 64, gocv.MatTypeCV8UC3)
		require.NoError(t, writer.Write(frame))
		frame.Close()
	}
}

func TestSampleVideoEveryNthFrame(t *testing.T) {
	dir := t.TempDir()
	videoPath := path.Join(dir, "game_clip.avi")
	writeTestVideo(t, videoPath, 300)

	outputDir := path.Join(dir, "extracted")
	result, err := SampleVideo(videoPath, outputDir, SamplerConfig{Interval: 30, JPEGQuality: 95})
	require.NoError(t, err)

	require.Equal(t, 300, result.TotalFrames)
	require.Equal(t, 10, result.FramesExtracted)
	require.Len(t, result.Frames, 10)

	for i, f := range result.Frames {
		require.Equal(t, i*30, f.FrameNumber)
		require.Equal(t, i, f.SavedIndex)
		require.FileExists(t, f.Path)
	}

	//frame names carry the source video and the interval
	require.Equal(t, "game_clip_skipped_30_frame_000000.jpg", path.Base(result.Frames[0].Path))
	require.Equal(t, "game_clip_skipped_30_frame_000009.jpg", path.Base(result.Frames[9].Path))
}

func TestSampleVideoIntervalOneKeepsAll(t *testing.T) {
	dir := t.TempDir()
	videoPath := path.Join(dir, "short.avi")
	writeTestVideo(t, videoPath, 12)

	result, err := SampleVideo(videoPath, path.Join(dir, "out"), SamplerConfig{Interval: 1, JPEGQuality: 95})
	require.NoError(t, err)
	require.Equal(t, 12, result.FramesExtracted)
}

func TestSampleVideoMaxFramesCap(t *testing.T) {
	dir := t.TempDir()
	videoPath := path.Join(dir, "long.avi")
	writeTestVideo(t, videoPath, 120)

	result, err := SampleVideo(videoPath, path.Join(dir, "out"), SamplerConfig{Interval: 10, MaxFrames: 5, JPEGQuality: 95})
	require.NoError(t, err)
	require.Equal(t, 5, result.FramesExtracted)
	require.Equal(t, 40, result.Frames[4].FrameNumber)
}

func TestSampleVideoMissingFile(t *testing.T) {
	_, err := SampleVideo(path.Join(t.TempDir(), "missing.mp4"), t.TempDir(), SamplerConfig{Interval: 30, JPEGQuality: 95})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStreamUnavailable))
}

func TestSampleVideoInvalidInterval(t *testing.T) {
	_, err := SampleVideo("whatever.mp4", t.TempDir(), SamplerConfig{Interval: 0})
	require.Error(t, err)
}

func TestSampleDirectoryIsolatesVideos(t *testing.T) {
	dir := t.TempDir()
	writeTestVideo(t, path.Join(dir, "quarter_1.avi"), 60)
	writeTestVideo(t, path.Join(dir, "quarter_2.avi"), 90)

	outputBase := path.Join(dir, "extracted")
	results, err := SampleDirectory(dir, outputBase, SamplerConfig{Interval: 30, JPEGQuality: 95})
	require.NoError(t, err)
	require.Len(t, results, 2)

	//each video lands in its own interval-tagged folder
	require.DirExists(t, path.Join(outputBase, "quarter_1__skip30"))
	require.DirExists(t, path.Join(outputBase, "quarter_2__skip30"))

	total := 0
	for _, r := range results {
		total += r.FramesExtracted
	}
	require.Equal(t, 5, total)
}

func TestSampleDirectoryNoVideos(t *testing.T) {
	_, err := SampleDirectory(t.TempDir(), t.TempDir(), SamplerConfig{Interval: 30, JPEGQuality: 95})
	require.Error(t, err)
}
