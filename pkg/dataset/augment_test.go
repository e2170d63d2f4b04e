package dataset

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFlipBoxesRoundTrip(t *testing.T) {
	boxes := Annotation{
		{Class: 0, CenterX: 0.3, CenterY: 0.6, Width: 0.1, Height: 0.2},
		{Class: 1, CenterX: 0.85, CenterY: 0.1, Width: 0.05, Height: 0.05},
	}

	twice := FlipBoxes(FlipBoxes(boxes))
	require.Len(t, twice, len(boxes))
	for i := range boxes {
		if math.Abs(twice[i].CenterX-boxes[i].CenterX) > 1e-12 {
			t.Errorf("box %d center x: expected %v, got %v", i, boxes[i].CenterX, twice[i].CenterX)
		}
		require.Equal(t, boxes[i].CenterY, twice[i].CenterY)
		require.Equal(t, boxes[i].Width, twice[i].Width)
		require.Equal(t, boxes[i].Class, twice[i].Class)
	}
}

func TestFlipBoxesMirrorsCenterOnly(t *testing.T) {
	flipped := FlipBoxes(Annotation{{Class: 0, CenterX: 0.2, CenterY: 0.7, Width: 0.3, Height: 0.4}})
	require.InDelta(t, 0.8, flipped[0].CenterX, 1e-12)
	require.Equal(t, 0.7, flipped[0].CenterY)
	require.Equal(t, 0.3, flipped[0].Width)
	require.Equal(t, 0.4, flipped[0].Height)
}

func TestZoomBoxesCenterStaysPut(t *testing.T) {
	boxes := Annotation{{Class: 0, CenterX: 0.5, CenterY: 0.5, Width: 0.2, Height: 0.2}}
	zoomed := ZoomBoxes(boxes, 1.5)
	require.Len(t, zoomed, 1)
	require.InDelta(t, 0.5, zoomed[0].CenterX, 1e-9)
	require.InDelta(t, 0.5, zoomed[0].CenterY, 1e-9)
	require.InDelta(t, 0.3, zoomed[0].Width, 1e-9)
}

func TestZoomBoxesDropInvariant(t *testing.T) {
	//for zoom 1.5 the crop removes (1 - 1/1.5)/2 ≈ 0.1667 per side; a center at
	//x=0.1 remaps to (0.1 - 0.1667)*1.5 = -0.1, outside [0,1], so the box drops
	boundary := Annotation{{Class: 0, CenterX: 0.1, CenterY: 0.5, Width: 0.05, Height: 0.05}}

	dropped := ZoomBoxes(boundary, 1.5)
	require.Empty(t, dropped)

	retained := ZoomBoxes(boundary, 1.0)
	require.Len(t, retained, 1)
	require.Equal(t, boundary[0], retained[0])
}

func TestZoomBoxesNoOpAtOrBelowOne(t *testing.T) {
	boxes := Annotation{{Class: 1, CenterX: 0.9, CenterY: 0.9, Width: 0.1, Height: 0.1}}
	for _, z := range []float64{1.0, 0.9, 0.5} {
		out := ZoomBoxes(boxes, z)
		require.Len(t, out, 1, "zoom %v", z)
		require.Equal(t, boxes[0], out[0], "zoom %v", z)
	}
}

func TestZoomBoxesDropsDegenerateGeometry(t *testing.T) {
	boxes := Annotation{{Class: 0, CenterX: 0.5, CenterY: 0.5, Width: 0, Height: 0.1}}
	require.Empty(t, ZoomBoxes(boxes, 1.2))
}

func TestFlipHorizontalImageRoundTrip(t *testing.T) {
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetUCharAt3(2, 1, 0, 200) //asymmetric marker pixel

	once := flipHorizontal(img)
	defer once.Close()
	twice := flipHorizontal(once)
	defer twice.Close()

	require.Equal(t, uint8(200), twice.GetUCharAt3(2, 1, 0))
	require.Equal(t, uint8(200), once.GetUCharAt3(2, 6, 0))
}

func TestZoomImageKeepsDimensions(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 100, 150, 0), 40, 60, gocv.MatTypeCV8UC3)
	defer img.Close()

	zoomed := zoomImage(img, 1.3)
	defer zoomed.Close()
	require.Equal(t, 40, zoomed.Rows())
	require.Equal(t, 60, zoomed.Cols())

	noop := zoomImage(img, 0.8)
	defer noop.Close()
	require.Equal(t, img.Mean().Val1, noop.Mean().Val1)
}

func TestAdjustBrightnessShiftsMean(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 16, 16, gocv.MatTypeCV8UC3)
	defer img.Close()

	brighter := adjustBrightness(img, 40)
	defer brighter.Close()
	require.Greater(t, brighter.Mean().Val1, img.Mean().Val1)

	darker := adjustBrightness(img, -40)
	defer darker.Close()
	require.Less(t, darker.Mean().Val1, img.Mean().Val1)
}

func TestAdjustContrastPreservesMean(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(120, 120, 120, 0), 16, 16, gocv.MatTypeCV8UC3)
	defer img.Close()

	//a uniform image sits at its own mean, so contrast scaling leaves it unchanged
	out := adjustContrast(img, 1.2)
	defer out.Close()
	require.InDelta(t, 120, out.Mean().Val1, 1.0)
}

func TestApplyVariantNoTransforms(t *testing.T) {
	cfg := AugmentConfig{VariantsPerImage: 1, JPEGQuality: 95, Seed: 7}
	aug := NewAugmentor(cfg)

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()
	boxes := Annotation{{Class: 0, CenterX: 0.4, CenterY: 0.4, Width: 0.2, Height: 0.2}}

	variant, variantBoxes, tag := aug.ApplyVariant(img, boxes, 1)
	defer variant.Close()

	require.Equal(t, "aug1", tag)
	require.Equal(t, boxes, variantBoxes)
	require.Equal(t, img.Mean().Val1, variant.Mean().Val1)
}

func TestApplyVariantAlwaysFlip(t *testing.T) {
	cfg := AugmentConfig{FlipProb: 1.0, Seed: 11}
	aug := NewAugmentor(cfg)

	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()
	boxes := Annotation{{Class: 0, CenterX: 0.25, CenterY: 0.5, Width: 0.1, Height: 0.1}}

	variant, variantBoxes, tag := aug.ApplyVariant(img, boxes, 2)
	defer variant.Close()

	require.True(t, strings.Contains(tag, "hflip"), "tag was %q", tag)
	require.True(t, strings.HasPrefix(tag, "aug2"), "tag was %q", tag)
	require.InDelta(t, 0.75, variantBoxes[0].CenterX, 1e-9)
}

func TestApplyVariantTagsAreDistinctPerVariantID(t *testing.T) {
	cfg := AugmentConfig{Seed: 3}
	aug := NewAugmentor(cfg)

	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	v1, _, tag1 := aug.ApplyVariant(img, nil, 1)
	defer v1.Close()
	v2, _, tag2 := aug.ApplyVariant(img, nil, 2)
	defer v2.Close()

	require.NotEqual(t, tag1, tag2)
}

func TestAugmentConfigValidate(t *testing.T) {
	bad := AugmentConfig{VariantsPerImage: -1}
	require.Error(t, bad.Validate())

	bad = AugmentConfig{FlipProb: 1.5}
	require.Error(t, bad.Validate())

	good := AugmentConfig{VariantsPerImage: 3, FlipProb: 0.5, NoiseStdDev: 10}
	require.NoError(t, good.Validate())
}
