package source

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// VideoCaptureOpener opens targets with OpenCV.
type VideoCaptureOpener struct {
	// FallbackAPI is tried when the default backend cannot open webcam 0.
	// Defaults to the platform's native capture API.
	FallbackAPI gocv.VideoCaptureAPI
}

func NewVideoCaptureOpener() *VideoCaptureOpener {
	return &VideoCaptureOpener{
		FallbackAPI: platformFallbackAPI,
	}
}

func (o *VideoCaptureOpener) Open(t Target) (Capture, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	switch t.Kind {
	case File:
		vc, err = gocv.VideoCaptureFile(t.Path)
	default:
		vc, err = gocv.VideoCaptureDevice(t.Index)
		if (err != nil || !vc.IsOpened()) && t.Index == 0 && o.FallbackAPI != gocv.VideoCaptureAny {
			if vc != nil {
				vc.Close()
			}
			log.Infof("Default backend failed to open %v, retrying with API %v", t, o.FallbackAPI)
			vc, err = gocv.VideoCaptureDeviceWithAPI(t.Index, o.FallbackAPI)
		}
	}
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("open %v: %w", t, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %v: source did not open", t)
	}
	return &VideoCapture{target: t, vc: vc}, nil
}

// VideoCapture is a Capture backed by gocv.VideoCapture.
type VideoCapture struct {
	target Target

	l  sync.Mutex
	vc *gocv.VideoCapture
}

func (v *VideoCapture) Read(dst *gocv.Mat) error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.vc == nil {
		return ErrNotOpen
	}
	if ok := v.vc.Read(dst); !ok || dst.Empty() {
		return ErrEndOfStream
	}
	return nil
}

func (v *VideoCapture) Rewind() error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.vc == nil {
		return ErrNotOpen
	}
	v.vc.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

func (v *VideoCapture) FPS() float64 {
	v.l.Lock()
	defer v.l.Unlock()
	if v.vc == nil {
		return 0
	}
	return v.vc.Get(gocv.VideoCaptureFPS)
}

func (v *VideoCapture) Close() error {
	v.l.Lock()
	defer v.l.Unlock()
	if v.vc == nil {
		return nil
	}
	err := v.vc.Close()
	v.vc = nil
	return err
}
