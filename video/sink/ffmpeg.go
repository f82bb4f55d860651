package sink

import (
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"detectcam/video/source"

	log "github.com/sirupsen/logrus"
)

type FFmpegOptions struct {
	// Binary is the ffmpeg executable.
	Binary string
	Size   image.Point
	FPS    float64
}

// FFmpegSink pipes raw BGR frames into an ffmpeg process which encodes them
// to h264.
type FFmpegSink struct {
	path string
	size image.Point

	l    sync.Mutex
	cmd  *exec.Cmd
	pipe io.WriteCloser
	err  error
}

func NewFFmpegSink(path string, opts FFmpegOptions) (*FFmpegSink, error) {
	c := exec.Command(
		opts.Binary,
		"-y",
		// Configure ffmpeg to read from the opencv pipe.
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", opts.Size.X, opts.Size.Y),
		"-framerate", fmt.Sprintf("%.3f", opts.FPS),
		"-i", "-", // Read from stdin.
		// Use h264 encoding with reasonable quality and speed. Note that
		// "preset" can be adjusted if the system is too slow to handle encoding.
		"-c:v", "libx264",
		"-preset", "superfast",
		"-crf", "30",
		"-pix_fmt", "yuv420p",
		// Enable fast-start so videos can be displayed in the browser without
		// full download.
		"-movflags", "+faststart",
		path,
	)
	c.Stderr = os.Stderr

	pipe, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	return &FFmpegSink{
		path: path,
		size: opts.Size,
		cmd:  c,
		pipe: pipe,
	}, nil
}

func (f *FFmpegSink) Put(input source.Image) error {
	f.l.Lock()
	defer f.l.Unlock()
	if f.err != nil {
		return f.err
	}
	if sz := input.Size(); sz != f.size {
		return fmt.Errorf("frame size %v does not match encoder size %v", sz, f.size)
	}
	if _, err := f.pipe.Write(input.Mat.ToBytes()); err != nil {
		// ffmpeg has most likely exited; further writes are pointless.
		f.err = fmt.Errorf("writing to ffmpeg: %w", err)
		return f.err
	}
	return nil
}

func (f *FFmpegSink) Close() error {
	f.l.Lock()
	defer f.l.Unlock()
	if f.cmd == nil {
		return nil
	}
	f.pipe.Close()
	log.Debugf("Waiting for ffmpeg shutdown for %v", f.path)
	err := f.cmd.Wait()
	log.Infof("ffmpeg exit with status %v", err)
	f.cmd = nil
	return err
}
