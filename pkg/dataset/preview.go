package dataset

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

//classColors are the plot colors per class index, cycled when there are more
//classes than colors
var classColors = []color.RGBA{
	{255, 128, 0, 0},
	{0, 128, 255, 0},
	{0, 200, 0, 0},
	{200, 0, 200, 0},
}

//DrawBoxes plots the YOLO boxes of an annotation onto the frame, with the class
//name written above each box. Used to eyeball label correctness after augmentation
func DrawBoxes(frame *gocv.Mat, boxes Annotation, classNames []string) {
	w := frame.Cols()
	h := frame.Rows()
	whiteRGB := color.RGBA{255, 255, 255, 0}

	for _, b := range boxes {
		plotColor := classColors[b.Class%len(classColors)]

		xmin := int((b.CenterX - b.Width/2) * float64(w))
		ymin := int((b.CenterY - b.Height/2) * float64(h))
		xmax := int((b.CenterX + b.Width/2) * float64(w))
		ymax := int((b.CenterY + b.Height/2) * float64(h))

		rect := image.Rect(xmin, ymin, xmax, ymax)
		gocv.Rectangle(frame, rect, plotColor, 2)

		label := fmt.Sprintf("class %d", b.Class)
		if b.Class < len(classNames) {
			label = classNames[b.Class]
		}

		startPoint := image.Pt(xmin, ymin-5)
		textBackgroundRect := image.Rect(xmin, ymin-20, xmin+10*len(label)+10, ymin) //thickness -1 == filled rectangle
		gocv.Rectangle(frame, textBackgroundRect, plotColor, -1)
		gocv.PutText(frame, label, startPoint, gocv.FontHersheyPlain, 1, whiteRGB, 2)
	}
}

//RenderPreview reads an image, draws its annotation (the sibling .txt file) onto it
//and writes the result to outputPath as a JPEG
func RenderPreview(imagePath, outputPath string, classNames []string, jpegQuality int) error {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return errors.Errorf("RenderPreview: could not read '%s'", imagePath)
	}

	boxes, err := ParseAnnotationFile(AnnotationPath(imagePath))
	if err != nil {
		return err
	}

	DrawBoxes(&img, boxes, classNames)

	if !gocv.IMWriteWithParams(outputPath, img, []int{gocv.IMWriteJpegQuality, jpegQuality}) {
		return errors.Errorf("RenderPreview: could not write '%s'", outputPath)
	}
	return nil
}
