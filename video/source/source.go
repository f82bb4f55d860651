package source

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrEndOfStream is returned by Capture.Read when no further frame can be
	// obtained from the current position.
	ErrEndOfStream = errors.New("end of stream")

	ErrNotOpen = errors.New("capture is not open")
)

// Image is a frame along with its capture time.
type Image struct {
	Mat  gocv.Mat
	Time time.Time
}

func (i *Image) Size() image.Point {
	return image.Point{X: i.Mat.Cols(), Y: i.Mat.Rows()}
}

type Kind int

const (
	Webcam Kind = iota
	File
)

// Label is the name of the kind as published in frame metadata.
func (k Kind) Label() string {
	if k == File {
		return "file"
	}
	return "webcam"
}

func (k Kind) String() string {
	return k.Label()
}

// Target addresses a video source: a webcam by index or a video file by path.
type Target struct {
	Kind  Kind
	Index int
	Path  string
}

func WebcamTarget(index int) Target {
	return Target{Kind: Webcam, Index: index}
}

func FileTarget(path string) Target {
	return Target{Kind: File, Path: path}
}

// Loops reports whether end-of-stream rewinds rather than ending the source.
func (t Target) Loops() bool {
	return t.Kind == File
}

func (t Target) String() string {
	if t.Kind == File {
		return "file " + strconv.Quote(t.Path)
	}
	return fmt.Sprintf("webcam %d", t.Index)
}

// Capture is an open video source.
type Capture interface {
	// Read decodes the next frame into dst. It returns ErrEndOfStream when
	// the source has no further frames.
	Read(dst *gocv.Mat) error

	// Rewind seeks back to the first frame. Only meaningful for looping
	// targets.
	Rewind() error

	// FPS is the frame rate reported by the source, or 0 when unknown.
	FPS() float64

	// Close releases the underlying device or file. Safe to call twice.
	Close() error
}

// Opener opens Targets. An Opener only returns a Capture once the source has
// been probed successfully.
type Opener interface {
	Open(t Target) (Capture, error)
}

// Probe opens and immediately releases t, reporting whether it is usable.
func Probe(o Opener, t Target) error {
	c, err := o.Open(t)
	if err != nil {
		return err
	}
	return c.Close()
}
