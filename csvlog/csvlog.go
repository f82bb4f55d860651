// Package csvlog writes detections to an append-only CSV file.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"detectcam/video/process"

	log "github.com/sirupsen/logrus"
)

// TimeLayout formats row timestamps, always in UTC.
const TimeLayout = "2006-01-02T15:04:05.000000"

var Header = []string{"timestamp", "class_id", "class_name", "conf", "x1", "y1", "x2", "y2"}

// Writer appends one row per detection. The file is created fresh, with the
// header, when the Writer is opened.
type Writer struct {
	path string

	l   sync.Mutex
	out io.WriteCloser
	w   *csv.Writer
}

func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := newWriter(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	log.Infof("Logging detections to %v", path)
	return w, nil
}

func newWriter(path string, out io.WriteCloser) (*Writer, error) {
	w := csv.NewWriter(out)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &Writer{
		path: path,
		out:  out,
		w:    w,
	}, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Row formats a detection as a CSV record.
func Row(t time.Time, d process.Detection) []string {
	return []string{
		t.UTC().Format(TimeLayout),
		strconv.Itoa(d.ClassID),
		d.ClassName,
		fmt.Sprintf("%.4f", d.Confidence),
		fmt.Sprintf("%.2f", d.Box.X1),
		fmt.Sprintf("%.2f", d.Box.Y1),
		fmt.Sprintf("%.2f", d.Box.X2),
		fmt.Sprintf("%.2f", d.Box.Y2),
	}
}

// LogDetections appends and flushes one row per detection. A failed append
// drops that batch only; later calls write through a fresh buffer.
func (w *Writer) LogDetections(t time.Time, dets []process.Detection) error {
	w.l.Lock()
	defer w.l.Unlock()
	if w.out == nil {
		return os.ErrClosed
	}
	var err error
	for _, d := range dets {
		if err = w.w.Write(Row(t, d)); err != nil {
			break
		}
	}
	if err == nil {
		w.w.Flush()
		err = w.w.Error()
	}
	if err != nil {
		// bufio errors are sticky.
		w.w = csv.NewWriter(w.out)
	}
	return err
}

func (w *Writer) Close() error {
	w.l.Lock()
	defer w.l.Unlock()
	if w.out == nil {
		return nil
	}
	w.w.Flush()
	err := w.out.Close()
	w.out = nil
	return err
}
