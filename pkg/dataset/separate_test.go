package dataset

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

//stubDetector classifies purely by file name so results cannot depend on batch
//composition: paths containing "ball" get one basketball detection
type stubDetector struct {
	calls [][]string
	fail  bool
}

func (d *stubDetector) Predict(imagePaths []string, confidence float64, device string) ([][]Detection, error) {
	d.calls = append(d.calls, append([]string{}, imagePaths...))
	if d.fail {
		return nil, errors.New("predictor exploded")
	}

	results := make([][]Detection, len(imagePaths))
	for i, p := range imagePaths {
		if strings.Contains(path.Base(p), "ball") {
			results[i] = []Detection{{Class: utils.BallClass, ClassName: "basketball", Confidence: 0.6}}
		} else {
			results[i] = []Detection{}
		}
	}
	return results, nil
}

func TestBallDetected(t *testing.T) {
	require.True(t, ballDetected([]Detection{{ClassName: "basketball"}}))
	require.True(t, ballDetected([]Detection{{ClassName: "player"}, {ClassName: "Basket_rim"}}))
	require.False(t, ballDetected([]Detection{{ClassName: "player"}}))
	require.False(t, ballDetected(nil))
	//a detector that reports no class names at all still counts any detection
	require.True(t, ballDetected([]Detection{{}}))
}

func makeImages(t *testing.T, dir string, names []string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(path.Join(dir, n), []byte("img"), 0644))
	}
}

func TestSeparateMovesByDetection(t *testing.T) {
	dir := t.TempDir()
	makeImages(t, dir, []string{"ball_01.jpg", "ball_02.jpg", "court_01.jpg", "court_02.jpg"})

	det := &stubDetector{}
	result, err := Separate(dir, det, SeparateConfig{BatchSize: 2, Confidence: 0.05, Device: "cpu"})
	require.NoError(t, err)
	require.Equal(t, 4, result.Total)
	require.Equal(t, 2, result.BallMoved)
	require.Equal(t, 2, result.NoBallMoved)

	ballImages, err := utils.ImageFiles(path.Join(dir, utils.BallDetectedDir))
	require.NoError(t, err)
	require.Len(t, ballImages, 2)

	noBallImages, err := utils.ImageFiles(path.Join(dir, utils.NoBallDetectedDir))
	require.NoError(t, err)
	require.Len(t, noBallImages, 2)

	//sources were moved, not copied
	remaining, err := utils.ImageFiles(dir)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestSeparateBatchIndependence(t *testing.T) {
	names := []string{"ball_a.jpg", "court_a.jpg", "ball_b.jpg", "court_b.jpg", "ball_c.jpg"}

	classify := func(batchSize int) map[string]string {
		dir := t.TempDir()
		makeImages(t, dir, names)

		_, err := Separate(dir, &stubDetector{}, SeparateConfig{BatchSize: batchSize, Confidence: 0.05, Device: "cpu"})
		require.NoError(t, err)

		placement := make(map[string]string)
		for _, sub := range []string{utils.BallDetectedDir, utils.NoBallDetectedDir} {
			images, err := utils.ImageFiles(path.Join(dir, sub))
			require.NoError(t, err)
			for _, img := range images {
				placement[path.Base(img)] = sub
			}
		}
		return placement
	}

	require.Equal(t, classify(1), classify(3))
	require.Equal(t, classify(1), classify(16))
}

func TestSeparateCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	makeImages(t, dir, []string{"ball_01.jpg"})

	//pre-existing file with the same name in the destination
	require.NoError(t, os.MkdirAll(path.Join(dir, utils.BallDetectedDir), 0766))
	require.NoError(t, os.WriteFile(path.Join(dir, utils.BallDetectedDir, "ball_01.jpg"), []byte("old"), 0644))

	_, err := Separate(dir, &stubDetector{}, SeparateConfig{BatchSize: 4, Confidence: 0.05, Device: "cpu"})
	require.NoError(t, err)

	require.FileExists(t, path.Join(dir, utils.BallDetectedDir, "ball_01.jpg"))
	require.FileExists(t, path.Join(dir, utils.BallDetectedDir, "ball_01_1.jpg"))

	old, err := os.ReadFile(path.Join(dir, utils.BallDetectedDir, "ball_01.jpg"))
	require.NoError(t, err)
	require.Equal(t, "old", string(old))
}

func TestSeparatePredictorFailureRoutesToNoBall(t *testing.T) {
	dir := t.TempDir()
	makeImages(t, dir, []string{"ball_01.jpg", "court_01.jpg"})

	result, err := Separate(dir, &stubDetector{fail: true}, SeparateConfig{BatchSize: 8, Confidence: 0.05, Device: "cpu"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 0, result.BallMoved)
	require.Equal(t, 2, result.NoBallMoved)
}

func TestSeparateEmptyDirectory(t *testing.T) {
	_, err := Separate(t.TempDir(), &stubDetector{}, SeparateConfig{BatchSize: 4, Confidence: 0.05, Device: "cpu"})
	require.Error(t, err)
}

func TestSeparateConfigValidate(t *testing.T) {
	require.Error(t, SeparateConfig{BatchSize: 0, Confidence: 0.5}.Validate())
	require.Error(t, SeparateConfig{BatchSize: 4, Confidence: 1.5}.Validate())
	require.NoError(t, SeparateConfig{BatchSize: 4, Confidence: 0.05}.Validate())
}
