package dataset

import (
	"fmt"
	"log"
	"os/exec"
	"path"
	"strconv"
	"strings"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
)

//TimeRange is one match section of a source video, in seconds
type TimeRange struct {
	Start float64
	End   float64
}

//ParseTimestamp converts "MM:SS" or "HH:MM:SS" to seconds
func ParseTimestamp(timestamp string) (float64, error) {
	parts := strings.Split(timestamp, ":")

	switch len(parts) {
	case 2:
		minutes, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, errors.Errorf("ParseTimestamp: invalid minutes in '%s'", timestamp)
		}
		seconds, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, errors.Errorf("ParseTimestamp: invalid seconds in '%s'", timestamp)
		}
		return float64(minutes)*60 + seconds, nil
	case 3:
		hours, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, errors.Errorf("ParseTimestamp: invalid hours in '%s'", timestamp)
		}
		minutes, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, errors.Errorf("ParseTimestamp: invalid minutes in '%s'", timestamp)
		}
		seconds, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, errors.Errorf("ParseTimestamp: invalid seconds in '%s'", timestamp)
		}
		return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
	default:
		return 0, errors.Errorf("ParseTimestamp: invalid format '%s', use MM:SS or HH:MM:SS", timestamp)
	}
}

//ParseRange converts "MM:SS-MM:SS" (or the HH:MM:SS form) to a TimeRange
func ParseRange(r string) (TimeRange, error) {
	parts := strings.Split(r, "-")
	if len(parts) != 2 {
		return TimeRange{}, errors.Errorf("ParseRange: invalid range '%s', use START-END", r)
	}

	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return TimeRange{}, err
	}
	end, err := ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return TimeRange{}, err
	}

	if end <= start {
		return TimeRange{}, errors.Errorf("ParseRange: end must be after start in '%s'", r)
	}

	return TimeRange{Start: start, End: end}, nil
}

//TrimVideo cuts the given match sections out of a source video into
//'<outputBase>/<video>/<video>_clip_<i>.mp4' using ffmpeg stream copy (no re-encode).
//A failed range is logged and skipped, the rest keep going. Returns the produced
//clip paths
func TrimVideo(videoPath string, ranges []TimeRange, outputBase string) ([]string, error) {
	if len(ranges) == 0 {
		return nil, errors.Errorf("TrimVideo: no time ranges given for '%s'", videoPath)
	}

	name := videoStem(videoPath)
	outputDir := path.Join(outputBase, name)
	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	clips := make([]string, 0, len(ranges))
	for i, r := range ranges {
		clipPath := path.Join(outputDir, fmt.Sprintf("%s_clip_%02d.mp4", name, i+1))

		cmd := exec.Command("ffmpeg", "-y",
			"-i", videoPath,
			"-ss", strconv.FormatFloat(r.Start, 'f', 2, 64),
			"-to", strconv.FormatFloat(r.End, 'f', 2, 64),
			"-c", "copy",
			clipPath,
		)
		if err := cmd.Run(); err != nil {
			log.Printf("TrimVideo: Error from ffmpeg for range %.2f-%.2f of '%s', got '%v'. Skipping.", r.Start, r.End, videoPath, err)
			continue
		}

		clips = append(clips, clipPath)
	}

	if len(clips) == 0 {
		return nil, errors.Errorf("TrimVideo: no clips produced from '%s'", videoPath)
	}

	log.Printf("TrimVideo: '%s' - produced %d of %d clip(s)", name, len(clips), len(ranges))
	return clips, nil
}
