package sink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// MJPEG streaming, based on implementation by saljam:
// https://github.com/saljam/mjpeg/blob/master/stream.go

const boundaryWord = "frame"
const headerf = "--" + boundaryWord + "\r\n" +
	"Content-Type: image/jpeg\r\n" +
	"Content-Length: %d\r\n" +
	"\r\n"

// JPEGSource supplies encoded frames to an MJPEG stream.
type JPEGSource interface {
	// NextJPEG blocks until a frame newer than after is available, returning
	// its bytes and sequence number. It returns ctx.Err() on cancellation.
	NextJPEG(ctx context.Context, after uint64) ([]byte, uint64, error)
}

// MJPEGServer serves the latest published frame of a JPEGSource as a
// multipart/x-mixed-replace stream. Each client polls independently, so a
// slow client only ever misses frames.
type MJPEGServer struct {
	Source JPEGSource

	// Interval returns the minimum delay between frames sent to a client.
	Interval func() time.Duration
}

func NewMJPEGServer(src JPEGSource, interval func() time.Duration) *MJPEGServer {
	return &MJPEGServer{
		Source:   src,
		Interval: interval,
	}
}

// ServeHTTP implements http.Handler interface, serving MJPEG.
func (s *MJPEGServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.WithField("addr", r.RemoteAddr)
	l.Info("MJPEG stream connected")
	defer l.Info("MJPEG stream disconnected")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundaryWord)
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	var seq uint64
	for {
		jpeg, next, err := s.Source.NextJPEG(ctx, seq)
		if err != nil {
			return
		}
		seq = next

		if err := writePart(w, jpeg); err != nil {
			l.Debugf("MJPEG write failed: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		if !sleepCtx(ctx, s.interval()) {
			return
		}
	}
}

func (s *MJPEGServer) interval() time.Duration {
	if s.Interval == nil {
		return 0
	}
	return s.Interval()
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, headerf, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
