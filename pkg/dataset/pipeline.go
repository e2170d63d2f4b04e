package dataset

import (
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

//Run states reported by Pipeline.Status
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

//PipelineConfig holds the stage directories and worker bound
type PipelineConfig struct {
	VideoDir     string //source videos or trimmed clips
	ExtractedDir string //sampled frames, one folder per video
	QualityDir   string //frames that passed the quality filter
	AugmentedDir string //originals plus augmented variants
	DatasetDir   string //final partitioned layout
	//Workers bounds how many videos are sampled and filtered concurrently.
	//Each worker owns its own filter state
	Workers int
}

//PipelineConfigFromViper builds a PipelineConfig from the 'directory' and
//'pipeline' config sections
func PipelineConfigFromViper() PipelineConfig {
	cfg := PipelineConfig{
		VideoDir:     viper.GetString("directory.clips"),
		ExtractedDir: viper.GetString("directory.extracted"),
		QualityDir:   viper.GetString("directory.quality"),
		AugmentedDir: viper.GetString("directory.augmented"),
		DatasetDir:   viper.GetString("directory.dataset"),
		Workers:      viper.GetInt("pipeline.workers"),
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	return cfg
}

//Validate checks the pipeline configuration before any work starts
func (c PipelineConfig) Validate() error {
	for name, dir := range map[string]string{
		"clips": c.VideoDir, "extracted": c.ExtractedDir, "quality": c.QualityDir,
		"augmented": c.AugmentedDir, "dataset": c.DatasetDir,
	} {
		if dir == "" {
			return errors.Errorf("PipelineConfig: missing '%s' directory", name)
		}
	}
	if c.Workers < 1 {
		return errors.Errorf("PipelineConfig: workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

//RunStatus is a queryable snapshot of one dataset build run
type RunStatus struct {
	RunID           string    `json:"run_id"`
	State           string    `json:"state"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	VideosSampled   int       `json:"videos_sampled"`
	FramesExtracted int       `json:"frames_extracted"`
	FramesKept      int       `json:"frames_kept"`
	OriginalImages  int       `json:"original_images"`
	AugmentedImages int       `json:"augmented_images"`
	TrainImages     int       `json:"train_images"`
	ValImages       int       `json:"val_images"`
	TestImages      int       `json:"test_images"`
	Error           string    `json:"error,omitempty"`
}

//Pipeline runs the four dataset construction stages in order: sample, filter,
//augment, partition. Sampling and filtering of distinct videos may run concurrently,
//each video with its own filter state; augmentation and partitioning only start once
//every video of the prior stage is done
type Pipeline struct {
	cfg     PipelineConfig
	sampler SamplerConfig
	filter  FilterConfig
	augment AugmentConfig
	split   SplitConfig

	mu      sync.Mutex
	status  RunStatus
	running bool
}

//NewPipeline builds a pipeline from explicit stage configurations
func NewPipeline(cfg PipelineConfig, sampler SamplerConfig, filter FilterConfig, augment AugmentConfig, split SplitConfig) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		sampler: sampler,
		filter:  filter,
		augment: augment,
		split:   split,
		status:  RunStatus{State: StateIdle},
	}
}

//NewPipelineFromViper builds a pipeline entirely from the loaded configuration file
func NewPipelineFromViper() *Pipeline {
	return NewPipeline(
		PipelineConfigFromViper(),
		SamplerConfigFromViper(),
		FilterConfigFromViper(),
		AugmentConfigFromViper(),
		SplitConfigFromViper(),
	)
}

//Status returns a snapshot of the current or last run
func (p *Pipeline) Status() RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

//ManifestPath returns where the last completed run wrote its manifest
func (p *Pipeline) ManifestPath() string {
	return path.Join(p.cfg.DatasetDir, ManifestFileName)
}

//Run executes a full dataset build. Only one run may be active at a time;
//concurrent runs into the same output directories are not supported
func (p *Pipeline) Run() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("Pipeline: a run is already in progress")
	}
	p.running = true
	p.status = RunStatus{RunID: uuid.NewString(), State: StateRunning, StartedAt: time.Now()}
	p.mu.Unlock()

	err := p.run()

	p.mu.Lock()
	p.running = false
	p.status.FinishedAt = time.Now()
	if err != nil {
		p.status.State = StateFailed
		p.status.Error = err.Error()
	} else {
		p.status.State = StateCompleted
	}
	p.mu.Unlock()

	if err != nil {
		log.Printf("Pipeline: Run failed, got '%v'", err)
	}
	return err
}

func (p *Pipeline) run() error {
	//fail fast on any bad stage configuration before touching the filesystem
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if err := p.sampler.Validate(); err != nil {
		return err
	}
	if err := p.filter.Validate(); err != nil {
		return err
	}
	if err := p.augment.Validate(); err != nil {
		return err
	}
	if err := p.split.Validate(); err != nil {
		return err
	}

	videos, err := utils.VideoFiles(p.cfg.VideoDir, true)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return errors.Errorf("Pipeline: no video files found in '%s'", p.cfg.VideoDir)
	}

	log.Printf("Pipeline: Starting run over %d video(s) with %d worker(s)", len(videos), p.cfg.Workers)

	//stage 1+2: sample and filter per video. Independent videos run concurrently,
	//each FilterDirectory call owns a fresh QualityFilter so temporal state never
	//crosses videos
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	for _, videoPath := range videos {
		wg.Add(1)
		sem <- struct{}{}
		go func(videoPath string) {
			defer wg.Done()
			defer func() { <-sem }()

			folder := fmt.Sprintf("%s__skip%d", videoStem(videoPath), p.sampler.Interval)

			sampleResult, err := SampleVideo(videoPath, path.Join(p.cfg.ExtractedDir, folder), p.sampler)
			if err != nil {
				log.Printf("Pipeline: Error sampling '%s', got '%v'. Skipping video.", videoPath, err)
				return
			}

			filterResult, err := FilterDirectory(sampleResult.OutputDir, path.Join(p.cfg.QualityDir, folder), p.filter)
			if err != nil {
				log.Printf("Pipeline: Error filtering '%s', got '%v'. Skipping video.", videoPath, err)
				return
			}

			p.mu.Lock()
			p.status.VideosSampled++
			p.status.FramesExtracted += sampleResult.FramesExtracted
			p.status.FramesKept += filterResult.QualityFrames
			p.mu.Unlock()
		}(videoPath)
	}
	wg.Wait()

	p.mu.Lock()
	sampled := p.status.VideosSampled
	p.mu.Unlock()
	if sampled == 0 {
		return errors.New("Pipeline: every video failed sampling or filtering")
	}

	//stage 3: augmentation over the complete filtered set
	augResult, err := AugmentDirectory(p.cfg.QualityDir, p.cfg.AugmentedDir, p.augment)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.status.OriginalImages = augResult.OriginalCount
	p.status.AugmentedImages = augResult.AugmentedCount
	p.mu.Unlock()

	//stage 4: partitioning over the complete augmented set
	partResult, err := Partition(p.cfg.AugmentedDir, p.cfg.DatasetDir, p.split)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.status.TrainImages = partResult.TrainImages
	p.status.ValImages = partResult.ValImages
	p.status.TestImages = partResult.TestImages
	p.mu.Unlock()

	log.Printf("Pipeline: Run complete - train %d, val %d, test %d image(s)",
		partResult.TrainImages, partResult.ValImages, partResult.TestImages)
	return nil
}
