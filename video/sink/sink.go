package sink

import (
	"detectcam/video/source"
)

// Sink defines a destination for a stream of images, such as a video file.
type Sink interface {
	// Put inserts an image to the sink. The caller *must not* modify this image
	// during the call, and the sink must not hold any references to the
	// underlying Mat afterwards.
	Put(input source.Image) error

	// Close should be called to finalize the Sink.
	Close() error
}
