package process

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// NetConfig describes a single-shot detector network whose final layer emits
// rows of [image, class, confidence, left, top, right, bottom] with
// coordinates normalised to [0,1] (e.g. MobileNet SSD).
type NetConfig struct {
	Path       string
	ConfigPath string
	Labels     Labels

	Confidence float64
	InputSize  int
	Scale      float64
	Mean       float64
	SwapRB     bool
}

// NetDetector runs an OpenCV DNN network over each frame and draws the
// results onto a copy of it.
type NetDetector struct {
	cfg NetConfig
	net gocv.Net

	// Resized network input.
	small gocv.Mat

	l sync.Mutex
}

func NewNetDetector(cfg NetConfig) (*NetDetector, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("model: no path configured")
	}
	// OpenCV aborts on unreadable model files rather than returning an
	// empty net, so check first.
	for _, p := range []string{cfg.Path, cfg.ConfigPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
	}
	net := gocv.ReadNet(cfg.Path, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to read network from %q", cfg.Path)
	}
	if cfg.Labels == nil {
		cfg.Labels = DefaultLabels()
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 300
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	return &NetDetector{
		cfg:   cfg,
		net:   net,
		small: gocv.NewMat(),
	}, nil
}

func (d *NetDetector) Detect(input gocv.Mat) (Result, error) {
	d.l.Lock()
	defer d.l.Unlock()

	if input.Empty() {
		return Result{}, fmt.Errorf("empty frame")
	}

	start := time.Now()
	defer func() {
		log.Debugf("Detector ran in %v", time.Since(start))
	}()

	size := image.Point{X: d.cfg.InputSize, Y: d.cfg.InputSize}
	gocv.Resize(input, &d.small, size, 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(d.small, d.cfg.Scale, size, gocv.NewScalar(d.cfg.Mean, d.cfg.Mean, d.cfg.Mean, 0), d.cfg.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	detBlob := d.net.Forward("")
	defer detBlob.Close()

	rows := gocv.GetBlobChannel(detBlob, 0, 0)
	defer rows.Close()

	w := float64(input.Cols())
	h := float64(input.Rows())

	var dets []Detection
	for r := 0; r < rows.Rows(); r++ {
		confidence := float64(rows.GetFloatAt(r, 2))
		if confidence < d.cfg.Confidence {
			continue
		}
		classID := int(rows.GetFloatAt(r, 1))
		box := Box{
			X1: clamp(float64(rows.GetFloatAt(r, 3))*w, 0, w),
			Y1: clamp(float64(rows.GetFloatAt(r, 4))*h, 0, h),
			X2: clamp(float64(rows.GetFloatAt(r, 5))*w, 0, w),
			Y2: clamp(float64(rows.GetFloatAt(r, 6))*h, 0, h),
		}
		if !box.Valid() {
			continue
		}
		det := Detection{
			ClassID:    classID,
			ClassName:  d.cfg.Labels.Name(classID),
			Confidence: math.Min(confidence, 1),
			Box:        box,
		}
		log.Debugf("Detection of %s at (%.0f, %.0f, %.0f, %.0f), confidence %.2f", det.ClassName, box.X1, box.Y1, box.X2, box.Y2, confidence)
		dets = append(dets, det)
	}

	annotated := input.Clone()
	DrawDetections(&annotated, dets)
	return Result{Annotated: annotated, Detections: dets}, nil
}

func (d *NetDetector) Close() error {
	d.l.Lock()
	defer d.l.Unlock()
	d.small.Close()
	return d.net.Close()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
