package dataset

import (
	"bufio"
	"encoding/json"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

//Detection is one detected box reported by the external detector
type Detection struct {
	Class      int         `json:"class"`
	ClassName  string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

//Detector is the contract with the external ball-presence model: a batch of image
//paths in, per-image detections out, in the same order. Per-image results must not
//depend on batch composition or ordering
type Detector interface {
	Predict(imagePaths []string, confidence float64, device string) ([][]Detection, error)
}

//imagePrediction is one stdout line of the predictor process
type imagePrediction struct {
	Path       string      `json:"path"`
	Detections []Detection `json:"detections"`
}

//ExecDetector shells out to an external predictor process which prints one JSON
//line per image on standard output
type ExecDetector struct {
	Command string //e.g. "python3"
	Script  string
	Weights string
}

//ExecDetectorFromViper builds an ExecDetector from the 'separation' config section
func ExecDetectorFromViper() *ExecDetector {
	return &ExecDetector{
		Command: viper.GetString("separation.command"),
		Script:  viper.GetString("separation.script"),
		Weights: viper.GetString("separation.weights"),
	}
}

//Predict runs the predictor over the batch and parses its per-image JSON lines.
//Results come back in input order; images the predictor did not report get an
//empty detection set
func (d *ExecDetector) Predict(imagePaths []string, confidence float64, device string) ([][]Detection, error) {
	args := []string{d.Script, "--weights", d.Weights, "--conf", strconv.FormatFloat(confidence, 'f', -1, 64), "--device", device}
	args = append(args, "--images")
	args = append(args, imagePaths...)

	cmd := exec.Command(d.Command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ExecDetector: could not open predictor's standard output")
	}
	defer stdout.Close()

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "ExecDetector: could not start predictor")
	}

	byPath := make(map[string][]Detection)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "{\"path\":") { //skip the predictor's log prints
			continue
		}

		pred := imagePrediction{}
		if err := json.Unmarshal([]byte(line), &pred); err != nil {
			log.Printf("ExecDetector: Error parsing predictor output, got '%v'", err)
			continue
		}
		byPath[pred.Path] = pred.Detections
	}

	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrap(err, "ExecDetector: predictor failed")
	}

	results := make([][]Detection, len(imagePaths))
	for i, p := range imagePaths {
		results[i] = byPath[p]
	}
	return results, nil
}

//SeparateConfig holds the ball-presence separation settings
type SeparateConfig struct {
	BatchSize  int
	Confidence float64
	Device     string
}

//SeparateConfigFromViper builds a SeparateConfig from the 'separation' config section
func SeparateConfigFromViper() SeparateConfig {
	cfg := SeparateConfig{
		BatchSize:  viper.GetInt("separation.batch_size"),
		Confidence: viper.GetFloat64("separation.confidence"),
		Device:     viper.GetString("separation.device"),
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 16
	}
	return cfg
}

//Validate checks the separation configuration before any work starts
func (c SeparateConfig) Validate() error {
	if c.BatchSize < 1 {
		return errors.Errorf("SeparateConfig: batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return errors.Errorf("SeparateConfig: confidence %.2f outside [0,1]", c.Confidence)
	}
	return nil
}

//SeparateResult summarizes one separation pass
type SeparateResult struct {
	Total       int `json:"total"`
	BallMoved   int `json:"ball_moved"`
	NoBallMoved int `json:"no_ball_moved"`
}

//ballDetected reports whether a detection set counts as "ball present": at least one
//box whose class name contains a ball keyword. A detector that reports no class
//names at all still counts any detection
func ballDetected(detections []Detection) bool {
	named := false
	for _, det := range detections {
		if det.ClassName != "" {
			named = true
			if utils.ContainsKeyword(det.ClassName, utils.BallKeywords) {
				return true
			}
		}
	}
	return !named && len(detections) > 0
}

//Separate classifies every image directly inside inputDir (non recursive) with the
//detector and moves each into the 'Ball_detected' or 'No_ball_detected' subfolder,
//never deleting and never overwriting (name collisions get a numeric suffix).
//A failed predictor batch is routed to 'No_ball_detected' and processing continues
func Separate(inputDir string, det Detector, cfg SeparateConfig) (*SeparateResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	images, err := utils.ImageFiles(inputDir)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		return nil, errors.Errorf("Separate: no images found in '%s'", inputDir)
	}

	ballDir := inputDir + "/" + utils.BallDetectedDir
	noBallDir := inputDir + "/" + utils.NoBallDetectedDir

	result := &SeparateResult{}

	for start := 0; start < len(images); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(images) {
			end = len(images)
		}
		batch := images[start:end]

		predictions, err := det.Predict(batch, cfg.Confidence, cfg.Device)
		if err != nil {
			log.Printf("Separate: Error running detector on batch, got '%v'. Routing batch to '%s'.", err, utils.NoBallDetectedDir)
			for _, img := range batch {
				if _, err := utils.SafeMove(img, noBallDir); err != nil {
					log.Printf("Separate: Error moving '%s', got '%v'. Skipping.", img, err)
					continue
				}
				result.Total++
				result.NoBallMoved++
			}
			continue
		}

		for i, img := range batch {
			target := noBallDir
			if ballDetected(predictions[i]) {
				target = ballDir
			}

			if _, err := utils.SafeMove(img, target); err != nil {
				log.Printf("Separate: Error moving '%s', got '%v'. Skipping.", img, err)
				continue
			}

			result.Total++
			if target == ballDir {
				result.BallMoved++
			} else {
				result.NoBallMoved++
			}
		}
	}

	log.Printf("Separate: Processed %d image(s) - %d with ball, %d without", result.Total, result.BallMoved, result.NoBallMoved)
	return result, nil
}
