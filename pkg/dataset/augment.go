package dataset

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gocv.io/x/gocv"
)

//AugmentConfig holds the per-transform activation probabilities and parameter ranges
type AugmentConfig struct {
	VariantsPerImage int

	BrightnessProb  float64
	BrightnessRange [2]int //additive delta on the value channel

	ContrastProb  float64
	ContrastRange [2]float64 //multiplicative factor around the image mean

	FlipProb float64 //horizontal only - gameplay is not invariant under vertical mirroring

	RotationProb  float64
	RotationRange [2]float64 //degrees, small angles

	ZoomProb  float64
	ZoomRange [2]float64

	NoiseProb   float64
	NoiseStdDev float64

	JPEGQuality int
	Seed        int64 //0 means seed from the clock
}

//AugmentConfigFromViper builds an AugmentConfig from the 'augmentation' config section
func AugmentConfigFromViper() AugmentConfig {
	cfg := AugmentConfig{
		VariantsPerImage: viper.GetInt("augmentation.augmentations_per_image"),
		BrightnessProb:   viper.GetFloat64("augmentation.brightness_probability"),
		ContrastProb:     viper.GetFloat64("augmentation.contrast_probability"),
		FlipProb:         viper.GetFloat64("augmentation.flip_probability"),
		RotationProb:     viper.GetFloat64("augmentation.rotation_probability"),
		ZoomProb:         viper.GetFloat64("augmentation.zoom_probability"),
		NoiseProb:        viper.GetFloat64("augmentation.noise_probability"),
		NoiseStdDev:      viper.GetFloat64("augmentation.noise_std"),
		JPEGQuality:      viper.GetInt("augmentation.frame_quality"),
		Seed:             viper.GetInt64("augmentation.seed"),
	}

	cfg.BrightnessRange = [2]int{viper.GetInt("augmentation.brightness_min"), viper.GetInt("augmentation.brightness_max")}
	cfg.ContrastRange = [2]float64{viper.GetFloat64("augmentation.contrast_min"), viper.GetFloat64("augmentation.contrast_max")}
	cfg.RotationRange = [2]float64{viper.GetFloat64("augmentation.rotation_min"), viper.GetFloat64("augmentation.rotation_max")}
	cfg.ZoomRange = [2]float64{viper.GetFloat64("augmentation.zoom_min"), viper.GetFloat64("augmentation.zoom_max")}

	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 95
	}
	return cfg
}

//Validate checks the augmentation configuration before any work starts
func (c AugmentConfig) Validate() error {
	if c.VariantsPerImage < 0 {
		return errors.Errorf("AugmentConfig: variants per image must be >= 0, got %d", c.VariantsPerImage)
	}
	for _, p := range []float64{c.BrightnessProb, c.ContrastProb, c.FlipProb, c.RotationProb, c.ZoomProb, c.NoiseProb} {
		if p < 0 || p > 1 {
			return errors.Errorf("AugmentConfig: probability %.2f outside [0,1]", p)
		}
	}
	if c.NoiseStdDev < 0 {
		return errors.Errorf("AugmentConfig: noise stddev must be >= 0, got %.2f", c.NoiseStdDev)
	}
	return nil
}

//Augmentor generates randomized photometric/geometric variants of an image while
//keeping its YOLO annotation consistent with the applied geometry
type Augmentor struct {
	cfg AugmentConfig
	rng *rand.Rand
}

//NewAugmentor returns an Augmentor with its own random source
func NewAugmentor(cfg AugmentConfig) *Augmentor {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Augmentor{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

//ApplyVariant produces one augmented variant of (img, boxes). The transforms are
//drawn independently and composed in fixed order: brightness, contrast, horizontal
//flip, rotation, zoom, noise. The returned Mat is owned by the caller, the returned
//tag names the applied transforms for filename disambiguation
func (a *Augmentor) ApplyVariant(img gocv.Mat, boxes Annotation, variantID int) (gocv.Mat, Annotation, string) {
	current := img.Clone()
	currentBoxes := append(Annotation{}, boxes...)
	tags := make([]string, 0)

	replace := func(next gocv.Mat) {
		current.Close()
		current = next
	}

	if a.rng.Float64() < a.cfg.BrightnessProb {
		delta := a.cfg.BrightnessRange[0]
		if span := a.cfg.BrightnessRange[1] - a.cfg.BrightnessRange[0]; span > 0 {
			delta += a.rng.Intn(span + 1)
		}
		replace(adjustBrightness(current, delta))
		tags = append(tags, fmt.Sprintf("bright%+d", delta))
	}

	if a.rng.Float64() < a.cfg.ContrastProb {
		factor := a.uniform(a.cfg.ContrastRange)
		replace(adjustContrast(current, factor))
		tags = append(tags, fmt.Sprintf("contrast%.2f", factor))
	}

	if a.rng.Float64() < a.cfg.FlipProb {
		replace(flipHorizontal(current))
		currentBoxes = FlipBoxes(currentBoxes)
		tags = append(tags, "hflip")
	}

	if a.rng.Float64() < a.cfg.RotationProb {
		angle := a.uniform(a.cfg.RotationRange)
		replace(rotateImage(current, angle))
		//boxes are kept as-is: for small angles the axis-aligned boxes stay roughly
		//valid. A known approximation, not an exact remap
		tags = append(tags, fmt.Sprintf("rot%.1f", angle))
	}

	if a.rng.Float64() < a.cfg.ZoomProb {
		zoom := a.uniform(a.cfg.ZoomRange)
		replace(zoomImage(current, zoom))
		currentBoxes = ZoomBoxes(currentBoxes, zoom)
		tags = append(tags, fmt.Sprintf("zoom%.2f", zoom))
	}

	if a.rng.Float64() < a.cfg.NoiseProb {
		replace(addGaussianNoise(current, a.cfg.NoiseStdDev))
		tags = append(tags, "noise")
	}

	tag := fmt.Sprintf("aug%d", variantID)
	if len(tags) > 0 {
		tag += "_" + strings.Join(tags, "_")
	}

	return current, currentBoxes, tag
}

func (a *Augmentor) uniform(r [2]float64) float64 {
	return r[0] + a.rng.Float64()*(r[1]-r[0])
}

//adjustBrightness adds delta to the HSV value channel with saturation.
//Geometry neutral
func adjustBrightness(img gocv.Mat, delta int) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	if delta >= 0 {
		channels[2].AddUChar(uint8(delta))
	} else {
		channels[2].SubtractUChar(uint8(-delta))
	}

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)
	for i := range channels {
		channels[i].Close()
	}

	out := gocv.NewMat()
	gocv.CvtColor(merged, &out, gocv.ColorHSVToBGR)
	return out
}

//adjustContrast scales pixel values around the image mean with saturation.
//Geometry neutral
func adjustContrast(img gocv.Mat, factor float64) gocv.Mat {
	m := img.Mean()
	mean := m.Val1
	if img.Channels() == 3 {
		mean = (m.Val1 + m.Val2 + m.Val3) / 3.0
	}

	f32 := gocv.NewMat()
	defer f32.Close()
	img.ConvertTo(&f32, gocv.MatTypeCV32F)

	f32.SubtractFloat(float32(mean))
	f32.MultiplyFloat(float32(factor))
	f32.AddFloat(float32(mean))

	out := gocv.NewMat()
	f32.ConvertTo(&out, gocv.MatTypeCV8U)
	return out
}

//flipHorizontal mirrors the image left-right
func flipHorizontal(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Flip(img, &out, 1)
	return out
}

//FlipBoxes mirrors YOLO boxes for a horizontal flip: only the x center moves
func FlipBoxes(boxes Annotation) Annotation {
	flipped := make(Annotation, 0, len(boxes))
	for _, b := range boxes {
		b.CenterX = 1.0 - b.CenterX
		flipped = append(flipped, b)
	}
	return flipped
}

//rotateImage rotates about the image center into a same-size output with constant
//black border fill
func rotateImage(img gocv.Mat, angle float64) gocv.Mat {
	w, h := img.Cols(), img.Rows()
	m := gocv.GetRotationMatrix2D(image.Pt(w/2, h/2), angle, 1.0)
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &out, m, image.Pt(w, h), gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return out
}

//zoomImage center-crops and rescales for zoom factors above 1. Factors at or
//below 1 are a no-op (a fresh copy is still returned)
func zoomImage(img gocv.Mat, zoom float64) gocv.Mat {
	if zoom <= 1.0 {
		return img.Clone()
	}

	w, h := img.Cols(), img.Rows()
	newW := int(float64(w) / zoom)
	newH := int(float64(h) / zoom)
	if newW < 1 || newH < 1 {
		return img.Clone()
	}

	left := (w - newW) / 2
	top := (h - newH) / 2

	region := img.Region(image.Rect(left, top, left+newW, top+newH))
	defer region.Close()

	out := gocv.NewMat()
	gocv.Resize(region, &out, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return out
}

//ZoomBoxes remaps YOLO boxes through the center-crop-and-rescale of zoomImage.
//A box whose remapped center leaves [0,1] on either axis is dropped from the
//variant - partial occlusion by the crop boundary is not supported. Zoom factors
//at or below 1 leave the boxes untouched
func ZoomBoxes(boxes Annotation, zoom float64) Annotation {
	if zoom <= 1.0 {
		return append(Annotation{}, boxes...)
	}

	//normalized crop offset: the crop removes (1 - 1/zoom)/2 on each side
	offset := (1.0 - 1.0/zoom) / 2.0

	zoomed := make(Annotation, 0, len(boxes))
	for _, b := range boxes {
		b.CenterX = (b.CenterX - offset) * zoom
		b.CenterY = (b.CenterY - offset) * zoom
		b.Width *= zoom
		b.Height *= zoom

		if b.CenterX < 0 || b.CenterX > 1 || b.CenterY < 0 || b.CenterY > 1 {
			continue
		}
		if b.Width <= 0 || b.Height <= 0 {
			continue
		}

		zoomed = append(zoomed, b)
	}
	return zoomed
}

//addGaussianNoise adds zero-mean Gaussian noise with given stddev, clipped back
//to the 8 bit range. Geometry neutral
func addGaussianNoise(img gocv.Mat, stdDev float64) gocv.Mat {
	noise := gocv.NewMatWithSize(img.Rows(), img.Cols(), gocv.MatTypeCV32FC3)
	defer noise.Close()
	gocv.RandN(&noise, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(stdDev, stdDev, stdDev, 0))

	f32 := gocv.NewMat()
	defer f32.Close()
	img.ConvertTo(&f32, gocv.MatTypeCV32F)

	noisy := gocv.NewMat()
	defer noisy.Close()
	gocv.Add(f32, noise, &noisy)

	out := gocv.NewMat()
	noisy.ConvertTo(&out, gocv.MatTypeCV8U)
	return out
}

//AugmentResult summarizes one augmentation pass
type AugmentResult struct {
	OriginalCount  int `json:"original_count"`
	AugmentedCount int `json:"augmented_count"`
	SkippedCount   int `json:"skipped_count"`
}

//TotalCount is the final dataset size after augmentation
func (r *AugmentResult) TotalCount() int {
	return r.OriginalCount + r.AugmentedCount
}

//AugmentDirectory expands every image under inputDir (recursively, preserving the
//per-video folder structure) into the original plus K augmented variants under
//outputDir. Each image's YOLO label file, when present, is transformed alongside it.
//Unreadable images are logged and skipped
func AugmentDirectory(inputDir, outputDir string, cfg AugmentConfig) (*AugmentResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	images, err := utils.ImageFilesRecursive(inputDir)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		return nil, errors.Errorf("AugmentDirectory: no images found in '%s'", inputDir)
	}

	log.Printf("AugmentDirectory: Augmenting %d image(s) with %d variant(s) each", len(images), cfg.VariantsPerImage)

	aug := NewAugmentor(cfg)
	result := &AugmentResult{}

	for _, imgPath := range images {
		img := gocv.IMRead(imgPath, gocv.IMReadColor)
		if img.Empty() {
			log.Printf("AugmentDirectory: Error reading '%s', skipping", imgPath)
			img.Close()
			result.SkippedCount++
			continue
		}

		boxes, err := ParseAnnotationFile(AnnotationPath(imgPath))
		if err != nil {
			log.Printf("AugmentDirectory: Error parsing annotation for '%s', got '%v'. Skipping.", imgPath, err)
			img.Close()
			result.SkippedCount++
			continue
		}

		rel, err := filepath.Rel(inputDir, imgPath)
		if err != nil {
			rel = filepath.Base(imgPath)
		}
		outSubdir := path.Join(outputDir, filepath.Dir(rel))
		if err := utils.EnsureDir(outSubdir); err != nil {
			log.Printf("AugmentDirectory: Error, got '%v'. Skipping '%s'.", err, imgPath)
			img.Close()
			result.SkippedCount++
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(imgPath), filepath.Ext(imgPath))

		//the unmodified source is retained as the implicit 0th variant
		if err := writeVariant(path.Join(outSubdir, stem), img, boxes, cfg.JPEGQuality); err != nil {
			log.Printf("AugmentDirectory: Error writing original '%s', got '%v'. Skipping.", imgPath, err)
			img.Close()
			result.SkippedCount++
			continue
		}
		result.OriginalCount++

		for k := 1; k <= cfg.VariantsPerImage; k++ {
			variant, variantBoxes, tag := aug.ApplyVariant(img, boxes, k)
			name := fmt.Sprintf("%s_%s", stem, tag)
			if err := writeVariant(path.Join(outSubdir, name), variant, variantBoxes, cfg.JPEGQuality); err != nil {
				log.Printf("AugmentDirectory: Error writing variant '%s', got '%v'. Skipping.", name, err)
				variant.Close()
				continue
			}
			variant.Close()
			result.AugmentedCount++
		}

		img.Close()
	}

	log.Printf("AugmentDirectory: Complete - %d originals, %d variants, %d skipped (total %d)",
		result.OriginalCount, result.AugmentedCount, result.SkippedCount, result.TotalCount())

	return result, nil
}

//writeVariant saves an image under '<base>.jpg' and, when there are boxes, its
//annotation under '<base>.txt'
func writeVariant(base string, img gocv.Mat, boxes Annotation, quality int) error {
	imgPath := base + ".jpg"
	if !gocv.IMWriteWithParams(imgPath, img, []int{gocv.IMWriteJpegQuality, quality}) {
		return errors.Errorf("writeVariant: could not write '%s'", imgPath)
	}

	if len(boxes) > 0 {
		if err := WriteAnnotationFile(base+utils.AnnotationExtension, boxes); err != nil {
			return err
		}
	}
	return nil
}
