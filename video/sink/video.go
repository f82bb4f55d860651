package sink

import (
	"fmt"
	"image"

	"detectcam/video/source"

	"gocv.io/x/gocv"
)

// Video provides a sink that wraps opencv's VideoWriter. Frames must match
// the size the writer was opened with.
type Video struct {
	writer *gocv.VideoWriter
	size   image.Point
}

func NewVideo(path, codec string, fps float64, size image.Point) (*Video, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, err
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("video writer for %v did not open (codec %q)", path, codec)
	}
	return &Video{
		writer: w,
		size:   size,
	}, nil
}

func (v *Video) Close() error {
	return v.writer.Close()
}

func (v *Video) Put(input source.Image) error {
	if sz := input.Size(); sz != v.size {
		return fmt.Errorf("frame size %v does not match writer size %v", sz, v.size)
	}
	return v.writer.Write(input.Mat)
}
