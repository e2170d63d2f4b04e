package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/pkg/errors"
)

//BoundingBox is one YOLO format box: class id plus center/size normalized to [0,1]
type BoundingBox struct {
	Class   int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

//Annotation is the (possibly empty) set of bounding boxes belonging to one image
type Annotation []BoundingBox

//AnnotationPath returns the label file path matching given image path
//(same base name, '.txt' extension)
func AnnotationPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + utils.AnnotationExtension
}

//ParseAnnotationFile reads a YOLO label file. A missing file is not an error -
//it means the image has no annotations (background frame)
func ParseAnnotationFile(path string) (Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Annotation{}, nil
		}
		return nil, errors.Wrapf(err, "ParseAnnotationFile: could not open '%s'", path)
	}
	defer f.Close()

	boxes := Annotation{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 5 {
			continue
		}

		cls, err := strconv.Atoi(parts[0])
		if err != nil || cls < 0 {
			return nil, errors.Errorf("ParseAnnotationFile: invalid class id '%s' in '%s'", parts[0], path)
		}

		vals := make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(parts[i+1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "ParseAnnotationFile: invalid field in '%s'", path)
			}
			vals[i] = v
		}

		boxes = append(boxes, BoundingBox{Class: cls, CenterX: vals[0], CenterY: vals[1], Width: vals[2], Height: vals[3]})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "ParseAnnotationFile: error reading '%s'", path)
	}

	return boxes, nil
}

//WriteAnnotationFile writes given boxes in YOLO format, one line per box,
//geometric fields with 6 decimal places
func WriteAnnotationFile(path string, boxes Annotation) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	var b strings.Builder
	for _, box := range boxes {
		fmt.Fprintf(&b, "%d %.6f %.6f %.6f %.6f\n", box.Class, box.CenterX, box.CenterY, box.Width, box.Height)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return errors.Wrapf(err, "WriteAnnotationFile: could not write '%s'", path)
	}

	return nil
}
