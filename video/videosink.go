package video

import (
	"fmt"
	"image"

	"detectcam/config"
	"detectcam/util"
	"detectcam/video/sink"

	log "github.com/sirupsen/logrus"
)

// WriterOpener opens recording writers sized to the frames they will receive.
type WriterOpener interface {
	Open(path string, size image.Point, fps float64) (sink.Sink, error)
}

// WriterFactory opens recording writers on the configured backend.
type WriterFactory struct {
	Backend string
	Codec   string

	// FFmpeg is the ffmpeg binary, used by the ffmpeg backend.
	FFmpeg string

	// Normalize wraps writers so that variable-rate input is written at a
	// constant frame rate.
	Normalize bool
}

func NewWriterFactory(c *config.Config) (*WriterFactory, error) {
	f := &WriterFactory{
		Backend:   c.RecordBackend,
		Codec:     c.RecordCodec,
		Normalize: c.NormalizeRecordFPS,
	}
	switch f.Backend {
	case config.RecordBackendOpenCV, "":
		f.Backend = config.RecordBackendOpenCV
	case config.RecordBackendFFmpeg:
		bin, err := util.LocateFFmpeg()
		if err != nil {
			return nil, err
		}
		log.Infof("Recording with ffmpeg at %v", bin)
		f.FFmpeg = bin
	default:
		return nil, fmt.Errorf("unknown record backend %q", f.Backend)
	}
	return f, nil
}

func (f *WriterFactory) Open(path string, size image.Point, fps float64) (sink.Sink, error) {
	var s sink.Sink
	switch f.Backend {
	case config.RecordBackendFFmpeg:
		fs, err := sink.NewFFmpegSink(path, sink.FFmpegOptions{
			Binary: f.FFmpeg,
			Size:   size,
			FPS:    fps,
		})
		if err != nil {
			return nil, err
		}
		s = fs
	default:
		v, err := sink.NewVideo(path, f.Codec, fps, size)
		if err != nil {
			return nil, err
		}
		s = v
	}
	if f.Normalize {
		// Ensure video is output with constant FPS.
		s = sink.NewFPSNormalize(s, fps)
	}
	return s, nil
}
