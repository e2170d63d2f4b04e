package dataset

import (
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gocv.io/x/gocv"
)

//ErrStreamUnavailable is returned when a video file cannot be opened as a frame stream
var ErrStreamUnavailable = errors.New("video stream unavailable")

//SamplerConfig holds frame sampling settings
type SamplerConfig struct {
	Interval    int //keep every Nth frame, counted from frame 0
	MaxFrames   int //stop after this many saved frames, 0 means no cap
	JPEGQuality int
}

//SamplerConfigFromViper builds a SamplerConfig from the 'sampling' config section
func SamplerConfigFromViper() SamplerConfig {
	cfg := SamplerConfig{
		Interval:    viper.GetInt("sampling.frame_interval"),
		MaxFrames:   viper.GetInt("sampling.max_frames_per_video"),
		JPEGQuality: viper.GetInt("sampling.frame_quality"),
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 95
	}
	return cfg
}

//Validate checks the sampler configuration before any work starts
func (c SamplerConfig) Validate() error {
	if c.Interval < 1 {
		return errors.Errorf("SamplerConfig: frame interval must be >= 1, got %d", c.Interval)
	}
	if c.MaxFrames < 0 {
		return errors.Errorf("SamplerConfig: max frames must be >= 0, got %d", c.MaxFrames)
	}
	return nil
}

//SampledFrame is the metadata of one saved frame
type SampledFrame struct {
	FrameNumber int     `json:"frame_number"` //index in the source video
	SavedIndex  int     `json:"saved_index"`  //running index among saved frames
	Timestamp   float64 `json:"timestamp"`    //frame_number / fps
	Path        string  `json:"path"`
}

//SampleResult summarizes one video's sampling pass
type SampleResult struct {
	VideoPath       string         `json:"video_path"`
	VideoName       string         `json:"video_name"`
	TotalFrames     int            `json:"total_frames"`
	FramesExtracted int            `json:"frames_extracted"`
	FPS             float64        `json:"fps"`
	OutputDir       string         `json:"output_dir"`
	Frames          []SampledFrame `json:"frames"`
}

//SampleVideo reads given video sequentially and saves every Nth decoded frame as a JPEG
//into outputDir. Sampling is purely positional (frame index modulo interval), it never
//looks at frame content. Frames are named '<video>_skipped_<N>_frame_<saved index>.jpg'
func SampleVideo(videoPath, outputDir string, cfg SamplerConfig) (*SampleResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, errors.Wrapf(ErrStreamUnavailable, "SampleVideo: could not open '%s': %v", videoPath, err)
	}
	defer cap.Close()

	if !cap.IsOpened() {
		return nil, errors.Wrapf(ErrStreamUnavailable, "SampleVideo: could not open '%s'", videoPath)
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	videoName := videoStem(videoPath)
	fps := cap.Get(gocv.VideoCaptureFPS)

	result := &SampleResult{
		VideoPath: videoPath,
		VideoName: videoName,
		FPS:       fps,
		OutputDir: outputDir,
		Frames:    make([]SampledFrame, 0),
	}

	frameMat := gocv.NewMat()
	defer frameMat.Close()

	frameCount := 0
	savedCount := 0

	for {
		if !cap.Read(&frameMat) || frameMat.Empty() {
			break
		}

		if frameCount%cfg.Interval == 0 {
			if cfg.MaxFrames > 0 && savedCount >= cfg.MaxFrames {
				log.Printf("SampleVideo: Reached max frames limit %d for '%s'", cfg.MaxFrames, videoName)
				break
			}

			timestamp := 0.0
			if fps > 0 {
				timestamp = float64(frameCount) / fps
			}

			frameName := fmt.Sprintf("%s_skipped_%d_frame_%06d.jpg", videoName, cfg.Interval, savedCount)
			framePath := path.Join(outputDir, frameName)

			if !gocv.IMWriteWithParams(framePath, frameMat, []int{gocv.IMWriteJpegQuality, cfg.JPEGQuality}) {
				log.Printf("SampleVideo: Error writing frame '%s', skipping", framePath)
				frameCount++
				continue
			}

			result.Frames = append(result.Frames, SampledFrame{
				FrameNumber: frameCount,
				SavedIndex:  savedCount,
				Timestamp:   timestamp,
				Path:        framePath,
			})
			savedCount++
		}

		frameCount++
	}

	result.TotalFrames = frameCount
	result.FramesExtracted = savedCount

	log.Printf("SampleVideo: '%s' - saved %d of %d frames (interval %d)", videoName, savedCount, frameCount, cfg.Interval)
	return result, nil
}

//SampleDirectory samples every video found under videoDir (recursively - trimmed clips
//live in per-video subfolders) into '<outputBase>/<video>__skip<N>/' folders.
//A video that cannot be opened is logged and skipped, the rest keep going
func SampleDirectory(videoDir, outputBase string, cfg SamplerConfig) ([]*SampleResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	videos, err := utils.VideoFiles(videoDir, true)
	if err != nil {
		return nil, err
	}

	if len(videos) == 0 {
		return nil, errors.Errorf("SampleDirectory: no video files found in '%s'", videoDir)
	}

	log.Printf("SampleDirectory: Found %d video(s) in '%s'", len(videos), videoDir)

	results := make([]*SampleResult, 0, len(videos))
	for i, videoPath := range videos {
		name := videoStem(videoPath)
		log.Printf("SampleDirectory: [%d/%d] Processing '%s'", i+1, len(videos), name)

		outputDir := path.Join(outputBase, fmt.Sprintf("%s__skip%d", name, cfg.Interval))
		result, err := SampleVideo(videoPath, outputDir, cfg)
		if err != nil {
			log.Printf("SampleDirectory: Error sampling '%s', got '%v'. Skipping.", videoPath, err)
			continue
		}
		results = append(results, result)
	}

	total := 0
	for _, r := range results {
		total += r.FramesExtracted
	}
	log.Printf("SampleDirectory: Extraction complete - %d frames from %d of %d video(s)", total, len(results), len(videos))

	return results, nil
}

//videoStem returns the video file name without directory and extension
func videoStem(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
