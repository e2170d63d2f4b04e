package dataset

import (
	"image"
	"log"
	"path"
	"path/filepath"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gocv.io/x/gocv"
)

//Rejection reasons reported by QualityFilter.Evaluate
const (
	RejectBrightness = "brightness"
	RejectSharpness  = "sharpness"
	RejectMotion     = "motion"
	RejectSimilarity = "similarity"
)

//FilterConfig holds quality filtering thresholds
type FilterConfig struct {
	MinBrightness       float64
	MaxBrightness       float64
	MinSharpness        float64
	DetectMotion        bool
	MinMotionScore      float64
	SkipSimilar         bool
	SimilarityThreshold float64
	//MetricsMaxDim bounds the larger dimension of the downscaled copy metrics are
	//computed on. 0 disables downscaling. Purely a speed optimization
	MetricsMaxDim int
}

//FilterConfigFromViper builds a FilterConfig from the 'quality_filter' config section
func FilterConfigFromViper() FilterConfig {
	return FilterConfig{
		MinBrightness:       viper.GetFloat64("quality_filter.min_brightness"),
		MaxBrightness:       viper.GetFloat64("quality_filter.max_brightness"),
		MinSharpness:        viper.GetFloat64("quality_filter.min_sharpness"),
		DetectMotion:        viper.GetBool("quality_filter.detect_motion"),
		MinMotionScore:      viper.GetFloat64("quality_filter.min_motion_score"),
		SkipSimilar:         viper.GetBool("quality_filter.skip_similar_frames"),
		SimilarityThreshold: viper.GetFloat64("quality_filter.similarity_threshold"),
		MetricsMaxDim:       viper.GetInt("quality_filter.metrics_max_dim"),
	}
}

//Validate checks the filter configuration before any work starts
func (c FilterConfig) Validate() error {
	if c.MinBrightness > c.MaxBrightness {
		return errors.Errorf("FilterConfig: min brightness %.1f above max brightness %.1f", c.MinBrightness, c.MaxBrightness)
	}
	if c.MetricsMaxDim < 0 {
		return errors.Errorf("FilterConfig: metrics max dim must be >= 0, got %d", c.MetricsMaxDim)
	}
	return nil
}

//QualityMetrics are the per-candidate measurements behind one accept/reject decision.
//They are never persisted beyond that decision
type QualityMetrics struct {
	Brightness  float64
	Sharpness   float64
	MotionScore float64
	Similarity  float64
}

//QualityFilter is a stateful predicate over an ordered sequence of candidate frames.
//Motion and similarity compare the candidate against the most recently accepted frame
//of the same video, so the state must be Reset between videos and never shared
type QualityFilter struct {
	cfg FilterConfig
	//grayscale (possibly downscaled) copy of the last accepted frame, owned by the filter
	lastAccepted gocv.Mat
	hasAccepted  bool
}

//NewQualityFilter returns a filter with no accepted frame yet
func NewQualityFilter(cfg FilterConfig) *QualityFilter {
	return &QualityFilter{cfg: cfg}
}

//Reset drops the carried last-accepted frame. Must be called when switching videos
func (f *QualityFilter) Reset() {
	if f.hasAccepted {
		f.lastAccepted.Close()
		f.hasAccepted = false
	}
}

//Close releases the filter's state
func (f *QualityFilter) Close() {
	f.Reset()
}

//Evaluate checks one candidate frame against the quality criteria in fixed order:
//brightness, sharpness, then (only when a frame was accepted before) motion and
//similarity, short-circuiting on the first failure. On acceptance the candidate
//becomes the new comparison baseline; on rejection the state is unchanged and the
//failing metric's name is returned
func (f *QualityFilter) Evaluate(frame gocv.Mat) (bool, QualityMetrics, string) {
	metrics := QualityMetrics{}

	metricGray := f.metricGray(frame)

	metrics.Brightness = metricGray.Mean().Val1
	if metrics.Brightness < f.cfg.MinBrightness || metrics.Brightness > f.cfg.MaxBrightness {
		metricGray.Close()
		return false, metrics, RejectBrightness
	}

	metrics.Sharpness = laplacianVariance(metricGray)
	if metrics.Sharpness < f.cfg.MinSharpness {
		metricGray.Close()
		return false, metrics, RejectSharpness
	}

	//first candidate of a video is never rejected for motion or similarity
	if f.hasAccepted {
		if f.cfg.DetectMotion {
			metrics.MotionScore = motionScore(metricGray, f.lastAccepted)
			if metrics.MotionScore < f.cfg.MinMotionScore {
				metricGray.Close()
				return false, metrics, RejectMotion
			}
		}

		if f.cfg.SkipSimilar {
			metrics.Similarity = similarityScore(metricGray, f.lastAccepted)
			if metrics.Similarity > f.cfg.SimilarityThreshold {
				metricGray.Close()
				return false, metrics, RejectSimilarity
			}
		}
	}

	if f.hasAccepted {
		f.lastAccepted.Close()
	}
	f.lastAccepted = metricGray
	f.hasAccepted = true

	return true, metrics, ""
}

//metricGray converts the frame to grayscale and downscales it to the configured
//bound. The caller owns the returned Mat
func (f *QualityFilter) metricGray(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() == 3 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if f.cfg.MetricsMaxDim <= 0 {
		return gray
	}

	maxDim := gray.Cols()
	if gray.Rows() > maxDim {
		maxDim = gray.Rows()
	}
	if maxDim <= f.cfg.MetricsMaxDim || maxDim == 0 {
		return gray
	}

	scale := float64(f.cfg.MetricsMaxDim) / float64(maxDim)
	newW := int(float64(gray.Cols())*scale + 0.5)
	newH := int(float64(gray.Rows())*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := gocv.NewMat()
	gocv.Resize(gray, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)
	gray.Close()
	return resized
}

//laplacianVariance returns the variance of the Laplacian edge response,
//higher values mean a sharper image
func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(lap, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd
}

//motionScore is the sum of absolute per-pixel differences between the candidate
//and the last accepted frame
func motionScore(gray, prev gocv.Mat) float64 {
	prevSized, cleanup := matchSize(prev, gray)
	defer cleanup()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, prevSized, &diff)

	return diff.Sum().Val1
}

//similarityScore returns a [0,1] similarity where 1 means identical. OpenCV offers
//no structural similarity primitive, so this is the normalized-MSE substitute
//(1 - min(mse, 1) over [0,1] grayscale), monotonic in the same direction
func similarityScore(gray, prev gocv.Mat) float64 {
	prevSized, cleanup := matchSize(prev, gray)
	defer cleanup()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, prevSized, &diff)

	diffF := gocv.NewMat()
	defer diffF.Close()
	diff.ConvertTo(&diffF, gocv.MatTypeCV32F)
	diffF.DivideFloat(255.0)

	squared := gocv.NewMat()
	defer squared.Close()
	gocv.Multiply(diffF, diffF, &squared)

	mse := squared.Mean().Val1
	if mse > 1.0 {
		mse = 1.0
	}
	return 1.0 - mse
}

//matchSize resizes prev to gray's dimensions when they differ. The cleanup function
//must be called once the returned Mat is no longer needed
func matchSize(prev, gray gocv.Mat) (gocv.Mat, func()) {
	if prev.Cols() == gray.Cols() && prev.Rows() == gray.Rows() {
		return prev, func() {}
	}

	resized := gocv.NewMat()
	gocv.Resize(prev, &resized, image.Pt(gray.Cols(), gray.Rows()), 0, 0, gocv.InterpolationLinear)
	return resized, func() { resized.Close() }
}

//FilterResult summarizes one directory's filtering pass
type FilterResult struct {
	InputDir      string         `json:"input_dir"`
	OutputDir     string         `json:"output_dir"`
	TotalFrames   int            `json:"total_frames"`
	QualityFrames int            `json:"quality_frames"`
	Rejected      int            `json:"rejected_frames"`
	RejectReasons map[string]int `json:"reject_reasons"`
}

//FilterDirectory runs the quality filter over the images of one sampled video folder
//(in filename order) and copies the accepted ones into outputDir. The filter state is
//reset before the pass so nothing leaks in from a previous video
func FilterDirectory(inputDir, outputDir string, cfg FilterConfig) (*FilterResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	images, err := utils.ImageFiles(inputDir)
	if err != nil {
		return nil, err
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	result := &FilterResult{
		InputDir:      inputDir,
		OutputDir:     outputDir,
		TotalFrames:   len(images),
		RejectReasons: make(map[string]int),
	}

	filter := NewQualityFilter(cfg)
	defer filter.Close()

	for _, imgPath := range images {
		frame := gocv.IMRead(imgPath, gocv.IMReadColor)
		if frame.Empty() {
			log.Printf("FilterDirectory: Error reading frame '%s', skipping", imgPath)
			frame.Close()
			continue
		}

		accepted, metrics, reason := filter.Evaluate(frame)
		frame.Close()

		if accepted {
			if err := utils.CopyFile(imgPath, path.Join(outputDir, filepath.Base(imgPath))); err != nil {
				log.Printf("FilterDirectory: Error copying '%s', got '%v'. Skipping.", imgPath, err)
				continue
			}
			result.QualityFrames++
		} else {
			result.Rejected++
			result.RejectReasons[reason]++
			log.Printf("FilterDirectory: Rejected '%s' (%s, brightness=%.2f sharpness=%.2f motion=%.2f similarity=%.3f)",
				filepath.Base(imgPath), reason, metrics.Brightness, metrics.Sharpness, metrics.MotionScore, metrics.Similarity)
		}
	}

	log.Printf("FilterDirectory: '%s' - %d of %d frames passed, %d rejected", inputDir, result.QualityFrames, result.TotalFrames, result.Rejected)
	return result, nil
}

//FilterBatch filters every video folder under inputBase into a matching folder under
//outputBase. Each folder gets a fresh filter pass
func FilterBatch(inputBase, outputBase string, cfg FilterConfig) ([]*FilterResult, error) {
	subdirs, err := utils.ListSubdirs(inputBase)
	if err != nil {
		return nil, err
	}

	if len(subdirs) == 0 {
		result, err := FilterDirectory(inputBase, outputBase, cfg)
		if err != nil {
			return nil, err
		}
		return []*FilterResult{result}, nil
	}

	results := make([]*FilterResult, 0, len(subdirs))
	for i, sub := range subdirs {
		log.Printf("FilterBatch: [%d/%d] Filtering '%s'", i+1, len(subdirs), sub)
		result, err := FilterDirectory(path.Join(inputBase, sub), path.Join(outputBase, sub), cfg)
		if err != nil {
			log.Printf("FilterBatch: Error filtering '%s', got '%v'. Skipping.", sub, err)
			continue
		}
		results = append(results, result)
	}

	totalIn, totalOut := 0, 0
	for _, r := range results {
		totalIn += r.TotalFrames
		totalOut += r.QualityFrames
	}
	log.Printf("FilterBatch: Filtering complete - %d of %d frames kept across %d folder(s)", totalOut, totalIn, len(results))

	return results, nil
}
