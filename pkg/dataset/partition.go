package dataset

import (
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

//ErrEmptyDataset is returned when there are no images to partition
var ErrEmptyDataset = errors.New("dataset is empty")

//SplitConfig holds the dataset partitioning settings
type SplitConfig struct {
	TrainRatio        float64
	ValRatio          float64
	TestRatio         float64
	Seed              int64
	CreateEmptyLabels bool
	ClassNames        []string
}

//SplitConfigFromViper builds a SplitConfig from the 'split' config section
func SplitConfigFromViper() SplitConfig {
	cfg := SplitConfig{
		TrainRatio:        viper.GetFloat64("split.train_ratio"),
		ValRatio:          viper.GetFloat64("split.val_ratio"),
		TestRatio:         viper.GetFloat64("split.test_ratio"),
		Seed:              viper.GetInt64("split.seed"),
		CreateEmptyLabels: viper.GetBool("split.create_empty_labels"),
		ClassNames:        viper.GetStringSlice("classes"),
	}
	if len(cfg.ClassNames) == 0 {
		cfg.ClassNames = utils.DefaultClassNames
	}
	return cfg
}

//Validate checks the split configuration before any work starts
func (c SplitConfig) Validate() error {
	for _, r := range []float64{c.TrainRatio, c.ValRatio, c.TestRatio} {
		if r < 0 || r > 1 {
			return errors.Errorf("SplitConfig: ratio %.3f outside [0,1]", r)
		}
	}
	if sum := c.TrainRatio + c.ValRatio + c.TestRatio; math.Abs(sum-1.0) > 1e-6 {
		return errors.Errorf("SplitConfig: ratios must sum to 1.0, got %.3f", sum)
	}
	return nil
}

//VideoGroup is the set of images (and labels) originating from one source video.
//It is the atomic unit for partitioning - a group is never split across partitions
type VideoGroup struct {
	Name       string
	Dir        string
	ImageCount int
}

//GatherVideoGroups collects the immediate subdirectories of inputDir as video groups
//with their image counts. Groups without images are excluded entirely
func GatherVideoGroups(inputDir string) ([]VideoGroup, error) {
	subdirs, err := utils.ListSubdirs(inputDir)
	if err != nil {
		return nil, err
	}

	groups := make([]VideoGroup, 0, len(subdirs))
	for _, name := range subdirs {
		dir := path.Join(inputDir, name)
		images, err := utils.ImageFiles(dir)
		if err != nil {
			log.Printf("GatherVideoGroups: Error listing '%s', got '%v'. Skipping.", dir, err)
			continue
		}
		if len(images) == 0 {
			continue
		}
		groups = append(groups, VideoGroup{Name: name, Dir: dir, ImageCount: len(images)})
	}

	return groups, nil
}

//AssignGroups distributes whole video groups over train/val/test with a greedy
//single pass over a seeded shuffle: a group goes to train while that keeps train at
//or under its image budget (or train is still empty), else to val under the analogous
//rule, else to test. Best-effort approximation of the ratios, with the hard invariant
//that no group is ever split
func AssignGroups(groups []VideoGroup, cfg SplitConfig) (train, val, test []VideoGroup, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	totalImages := 0
	for _, g := range groups {
		totalImages += g.ImageCount
	}
	if totalImages == 0 {
		return nil, nil, nil, errors.Wrap(ErrEmptyDataset, "AssignGroups")
	}

	shuffled := append([]VideoGroup{}, groups...)
	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	targetTrain := cfg.TrainRatio * float64(totalImages)
	targetVal := cfg.ValRatio * float64(totalImages)

	train = make([]VideoGroup, 0)
	val = make([]VideoGroup, 0)
	test = make([]VideoGroup, 0)
	countTrain, countVal := 0, 0

	for _, g := range shuffled {
		if float64(countTrain+g.ImageCount) <= targetTrain || len(train) == 0 {
			train = append(train, g)
			countTrain += g.ImageCount
		} else if float64(countVal+g.ImageCount) <= targetVal || len(val) == 0 {
			val = append(val, g)
			countVal += g.ImageCount
		} else {
			test = append(test, g)
		}
	}

	return train, val, test, nil
}

//Manifest is the machine readable record of one partitioning run, written once
//after partitioning completes
type Manifest struct {
	RunID  string             `json:"run_id"`
	Seed   int64              `json:"seed"`
	Ratios map[string]float64 `json:"ratios"`
	Counts map[string]int     `json:"counts"`
	Videos map[string][]string `json:"videos"`
}

//ManifestFileName is the manifest file written into the dataset root
const ManifestFileName = "split_summary.json"

//DataYAMLFileName is the YOLO dataset descriptor written into the dataset root
const DataYAMLFileName = "data.yaml"

//dataYAML is the YOLO dataset descriptor consumed by the external training component
type dataYAML struct {
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

//PartitionResult summarizes one partitioning run
type PartitionResult struct {
	TrainImages int    `json:"train_images"`
	ValImages   int    `json:"val_images"`
	TestImages  int    `json:"test_images"`
	OutputDir   string `json:"output_dir"`
	ManifestPath string `json:"manifest_path"`
}

//Partition assigns the video groups under inputDir to train/val/test, copies their
//images and labels into the partition layout under outputDir, and writes the
//manifest and data.yaml. Layout: '<out>/<split>/images' and '<out>/<split>/labels'
func Partition(inputDir, outputDir string, cfg SplitConfig) (*PartitionResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	groups, err := GatherVideoGroups(inputDir)
	if err != nil {
		return nil, err
	}

	train, val, test, err := AssignGroups(groups, cfg)
	if err != nil {
		return nil, err
	}

	for _, split := range utils.SplitNames {
		if err := utils.EnsureDir(path.Join(outputDir, split, "images")); err != nil {
			return nil, err
		}
		if err := utils.EnsureDir(path.Join(outputDir, split, "labels")); err != nil {
			return nil, err
		}
	}

	assignment := map[string][]VideoGroup{
		utils.TrainSplit: train,
		utils.ValSplit:   val,
		utils.TestSplit:  test,
	}

	counts := make(map[string]int)
	videos := make(map[string][]string)
	for _, split := range utils.SplitNames {
		videos[split] = make([]string, 0)
		for _, g := range assignment[split] {
			copied, err := copyGroup(g, path.Join(outputDir, split), cfg.CreateEmptyLabels)
			if err != nil {
				return nil, err
			}
			counts[split] += copied
			videos[split] = append(videos[split], g.Name)
		}
		log.Printf("Partition: %s - %d video(s), %d image(s)", split, len(assignment[split]), counts[split])
	}

	manifest := Manifest{
		RunID: uuid.NewString(),
		Seed:  cfg.Seed,
		Ratios: map[string]float64{
			utils.TrainSplit: cfg.TrainRatio,
			utils.ValSplit:   cfg.ValRatio,
			utils.TestSplit:  cfg.TestRatio,
		},
		Counts: counts,
		Videos: videos,
	}

	manifestPath := path.Join(outputDir, ManifestFileName)
	if err := writeManifest(manifestPath, manifest); err != nil {
		return nil, err
	}

	if err := writeDataYAML(path.Join(outputDir, DataYAMLFileName), cfg.ClassNames); err != nil {
		return nil, err
	}

	return &PartitionResult{
		TrainImages:  counts[utils.TrainSplit],
		ValImages:    counts[utils.ValSplit],
		TestImages:   counts[utils.TestSplit],
		OutputDir:    outputDir,
		ManifestPath: manifestPath,
	}, nil
}

//copyGroup copies one video group's images into '<splitDir>/images' and their labels
//into '<splitDir>/labels'. When an image has no label file and createEmptyLabels is
//set, an empty label file is created (some trainers require one per image)
func copyGroup(g VideoGroup, splitDir string, createEmptyLabels bool) (int, error) {
	images, err := utils.ImageFiles(g.Dir)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, img := range images {
		base := filepath.Base(img)
		if err := utils.CopyFile(img, path.Join(splitDir, "images", base)); err != nil {
			return copied, err
		}

		labelName := filepath.Base(AnnotationPath(img))
		srcLabel := AnnotationPath(img)
		dstLabel := path.Join(splitDir, "labels", labelName)
		if _, err := os.Stat(srcLabel); err == nil {
			if err := utils.CopyFile(srcLabel, dstLabel); err != nil {
				return copied, err
			}
		} else if createEmptyLabels {
			if err := os.WriteFile(dstLabel, []byte{}, 0644); err != nil {
				return copied, errors.Wrapf(err, "copyGroup: could not write '%s'", dstLabel)
			}
		}

		copied++
	}

	return copied, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "writeManifest")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writeManifest: could not write '%s'", path)
	}
	log.Printf("Partition: Wrote manifest '%s'", path)
	return nil
}

//writeDataYAML writes the descriptor with paths relative to its own location, the
//way the training component expects them
func writeDataYAML(path string, classNames []string) error {
	d := dataYAML{
		Train: "train/images",
		Val:   "val/images",
		Test:  "test/images",
		NC:    len(classNames),
		Names: classNames,
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "writeDataYAML")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writeDataYAML: could not write '%s'", path)
	}
	log.Printf("Partition: Wrote dataset descriptor '%s'", path)
	return nil
}
