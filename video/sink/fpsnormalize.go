package sink

import (
	"time"

	"detectcam/video/source"

	"gocv.io/x/gocv"
)

// FPSNormalize wraps another Sink so that an incoming stream of variable-timed
// video is converted to fixed-rate video. This is useful for exporting a
// webcam feed (which may have variable frame rate) to a video file which
// requires fixed frame rate. Frames will be dropped or added in order to
// achieve the target frame rate.
type FPSNormalize struct {
	// sink is the wrapped Sink which will receive a FPS-normalized stream.
	sink Sink

	frameDur time.Duration
	last     gocv.Mat
	curFrame time.Time
}

// NewFPSNormalize creates an FPSNormalize, wrapping the provided sink and
// exporting at the given frame rate.
func NewFPSNormalize(sink Sink, fps float64) *FPSNormalize {
	return &FPSNormalize{
		sink:     sink,
		frameDur: time.Duration(float64(time.Second) / fps),
		last:     gocv.NewMat(),
	}
}

func (f *FPSNormalize) Close() error {
	err := f.sink.Close()
	f.last.Close()
	return err
}

func (f *FPSNormalize) Put(input source.Image) error {
	if f.curFrame.IsZero() {
		input.Mat.CopyTo(&f.last)
		f.curFrame = input.Time
		return f.sink.Put(input)
	}

	nextFrame := f.curFrame.Add(f.frameDur)
	if input.Time.Before(nextFrame) {
		// Don't need a new frame yet. Ignore.
		return nil
	}

	for {
		f.curFrame = nextFrame
		nextFrame = f.curFrame.Add(f.frameDur)
		if input.Time.Before(nextFrame) {
			input.Mat.CopyTo(&f.last)
			return f.sink.Put(source.Image{Mat: input.Mat, Time: f.curFrame})
		}
		// Missed a frame. Rewrite last frame.
		if err := f.sink.Put(source.Image{Mat: f.last, Time: f.curFrame}); err != nil {
			return err
		}
	}
}
