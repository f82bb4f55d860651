package process

import (
	"image"
	"os"

	"gocv.io/x/gocv"
)

var ThumbSize = image.Point{X: 320, Y: 180}

// EncodeJPEG compresses img at the given quality (1-100).
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	// The native buffer is freed on Close; keep a Go copy.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// WriteThumb writes a downscaled JPEG of input to path.
func WriteThumb(path string, input gocv.Mat) error {
	tmat := gocv.NewMat()
	defer tmat.Close()
	gocv.Resize(input, &tmat, ThumbSize, 0, 0, gocv.InterpolationArea)

	jpeg, err := EncodeJPEG(tmat, 85)
	if err != nil {
		return err
	}
	return os.WriteFile(path, jpeg, 0644)
}
