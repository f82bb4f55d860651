package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"detectcam/config"
	"detectcam/util"
	"detectcam/video"
	"detectcam/video/process"
	"detectcam/video/source"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	ErrNotRunning     = errors.New("pipeline is not running")
	ErrAlreadyRunning = errors.New("pipeline is already running")
	ErrStopTimeout    = errors.New("pipeline did not stop in time")
	ErrSourceLost     = errors.New("video source lost")
)

// DetectionLogger persists detections. Failures are reported to the caller,
// which logs and discards them.
type DetectionLogger interface {
	LogDetections(t time.Time, dets []process.Detection) error
}

type Options struct {
	JPEGQuality int
	// MaxReadFailures is the number of consecutive failed reads after which a
	// webcam is considered gone.
	MaxReadFailures int
	// Yield is the pause at the end of every iteration.
	Yield time.Duration
	// RetryDelay is the pause after a failed read.
	RetryDelay time.Duration
	// Overlay draws the source label and time onto each annotated frame.
	Overlay bool
}

func OptionsFromConfig(c *config.Config) Options {
	return Options{
		JPEGQuality:     c.JPEGQuality,
		MaxReadFailures: c.MaxReadFailures,
		Yield:           time.Millisecond,
		RetryDelay:      50 * time.Millisecond,
		Overlay:         c.OverlayTimestamp,
	}
}

type WorkerConfig struct {
	Opener   source.Opener
	Detector process.Detector
	Recorder *video.Recorder
	Store    *Store
	Loggers  []DetectionLogger
	Options  Options
}

// Worker owns the video source and runs capture, inference and publishing on
// a single goroutine. Other goroutines interact with it only through requests
// (RequestSwitch, the Recorder) and the Store.
type Worker struct {
	c WorkerConfig

	l       sync.Mutex
	target  source.Target
	pending *source.Target
	started bool
	err     error

	stop     chan struct{}
	stopOnce sync.Once
	done     *util.Event

	capL    sync.Mutex
	capture source.Capture

	// Only touched by the worker goroutine.
	fps      FPSMeter
	failures int
}

func NewWorker(c WorkerConfig, initial source.Target) *Worker {
	if c.Options.MaxReadFailures <= 0 {
		c.Options.MaxReadFailures = 1
	}
	return &Worker{
		c:      c,
		target: initial,
		stop:   make(chan struct{}),
		done:   util.NewEvent(),
	}
}

// Start opens the initial source and launches the worker goroutine. Failure to
// open the initial source is returned rather than silently falling back.
func (w *Worker) Start() error {
	w.l.Lock()
	defer w.l.Unlock()
	if w.started {
		return ErrAlreadyRunning
	}
	c, err := w.c.Opener.Open(w.target)
	if err != nil {
		return fmt.Errorf("opening %v: %w", w.target, err)
	}
	w.setCapture(c)
	w.started = true
	log.Infof("Streaming from %v", w.target)
	go w.run()
	return nil
}

// RequestSwitch queues a source switch, replacing any unapplied request. The
// worker applies it at the start of its next iteration.
func (w *Worker) RequestSwitch(t source.Target) {
	w.l.Lock()
	defer w.l.Unlock()
	w.pending = &t
	log.Debugf("Queued switch to %v", t)
}

// Source returns the configured target the worker is streaming from.
func (w *Worker) Source() source.Target {
	w.l.Lock()
	defer w.l.Unlock()
	return w.target
}

func (w *Worker) Running() bool {
	w.l.Lock()
	defer w.l.Unlock()
	return w.started && !w.done.HasBeenNotified()
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done.C()
}

// Err returns the terminal error of the worker, if any.
func (w *Worker) Err() error {
	w.l.Lock()
	defer w.l.Unlock()
	return w.err
}

// Stop asks the worker to exit and waits up to timeout for it. On timeout the
// worker is abandoned and its source released.
func (w *Worker) Stop(timeout time.Duration) error {
	w.l.Lock()
	started := w.started
	w.l.Unlock()
	if !started {
		return ErrNotRunning
	}
	w.stopOnce.Do(func() { close(w.stop) })

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done.C():
		return w.Err()
	case <-t.C:
		log.Warnf("Pipeline worker did not exit within %v, abandoning", timeout)
		// A blocked read holds the capture lock; release once it returns.
		go w.releaseCapture()
		return ErrStopTimeout
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// pause sleeps for d unless stopped first.
func (w *Worker) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stop:
	case <-t.C:
	}
}

func (w *Worker) setCapture(c source.Capture) {
	w.capL.Lock()
	defer w.capL.Unlock()
	w.capture = c
}

func (w *Worker) getCapture() source.Capture {
	w.capL.Lock()
	defer w.capL.Unlock()
	return w.capture
}

func (w *Worker) releaseCapture() {
	w.capL.Lock()
	defer w.capL.Unlock()
	if w.capture == nil {
		return
	}
	if err := w.capture.Close(); err != nil {
		log.Warnf("Error releasing source: %v", err)
	}
	w.capture = nil
}

func (w *Worker) setTarget(t source.Target) {
	w.l.Lock()
	defer w.l.Unlock()
	w.target = t
}

func (w *Worker) fail(err error) {
	w.l.Lock()
	defer w.l.Unlock()
	w.err = err
}

func (w *Worker) run() {
	defer w.done.Notify()
	defer w.releaseCapture()

	frame := gocv.NewMat()
	defer frame.Close()

	for !w.stopping() {
		if err := w.applySwitch(); err != nil {
			w.fail(err)
			log.Errorf("Pipeline stopped: %v", err)
			return
		}
		ok, err := w.read(&frame)
		if err != nil {
			w.fail(err)
			log.Errorf("Pipeline stopped: %v", err)
			return
		}
		if w.stopping() {
			// Stop may have timed out while the read blocked; the detector
			// is no longer ours to use.
			break
		}
		if ok {
			w.process(frame)
		}
		w.pause(w.c.Options.Yield)
	}
	log.Info("Pipeline worker exiting")
}

// applySwitch applies a pending switch request. If the new target cannot be
// opened the previous target is reopened; failing that is fatal for a webcam.
func (w *Worker) applySwitch() error {
	w.l.Lock()
	req, prev := w.pending, w.target
	w.pending = nil
	w.l.Unlock()
	if req == nil {
		return nil
	}

	log.Infof("Switching source from %v to %v", prev, *req)
	w.releaseCapture()
	// Frame dimensions may change with the source.
	w.c.Recorder.MarkReopen()
	w.failures = 0

	c, err := w.c.Opener.Open(*req)
	if err == nil {
		w.setCapture(c)
		w.setTarget(*req)
		sourceSwitches.WithLabelValues("ok").Inc()
		return nil
	}
	sourceSwitches.WithLabelValues("reverted").Inc()
	log.Warnf("Failed to open %v, reverting to %v: %v", *req, prev, err)

	c, err = w.c.Opener.Open(prev)
	if err != nil {
		if prev.Loops() {
			log.Errorf("Failed to reopen %v, will retry: %v", prev, err)
			return nil
		}
		return fmt.Errorf("reverting to %v: %w", prev, err)
	}
	w.setCapture(c)
	return nil
}

// read fetches the next frame into dst. File sources are rewound at end of
// stream; a webcam failing MaxReadFailures times in a row is fatal.
func (w *Worker) read(dst *gocv.Mat) (bool, error) {
	target := w.Source()
	opened, err := w.readLocked(target, dst)
	if !opened {
		log.Warnf("Reopening %v failed: %v", target, err)
		w.pause(w.c.Options.RetryDelay)
		return false, nil
	}
	if err == nil {
		w.failures = 0
		return true, nil
	}

	w.failures++
	log.Warnf("Read from %v failed (%d/%d): %v", target, w.failures, w.c.Options.MaxReadFailures, err)
	if !target.Loops() && w.failures >= w.c.Options.MaxReadFailures {
		return false, fmt.Errorf("%v: %w", target, ErrSourceLost)
	}
	w.pause(w.c.Options.RetryDelay)
	return false, nil
}

// readLocked reads from the current capture, reopening it first if an earlier
// revert left none. It holds the capture lock, so releaseCapture waits for a
// blocked read to return. opened is false when no capture was available.
func (w *Worker) readLocked(target source.Target, dst *gocv.Mat) (opened bool, err error) {
	w.capL.Lock()
	defer w.capL.Unlock()
	if w.capture == nil {
		c, err := w.c.Opener.Open(target)
		if err != nil {
			return false, err
		}
		w.capture = c
	}
	err = w.capture.Read(dst)
	if err != nil && target.Loops() && errors.Is(err, source.ErrEndOfStream) {
		log.Debugf("End of %v, rewinding", target)
		if err = w.capture.Rewind(); err == nil {
			err = w.capture.Read(dst)
		}
	}
	return true, err
}

// process runs one frame through inference, logging, recording and
// publishing. Failures only affect this frame.
func (w *Worker) process(frame gocv.Mat) {
	start := time.Now()
	res, err := w.c.Detector.Detect(frame)
	elapsed := time.Since(start)
	if err != nil {
		detectFailures.Inc()
		log.Warnf("Detection failed: %v", err)
		return
	}
	defer res.Annotated.Close()
	fps := w.fps.Observe(elapsed)
	fpsEstimate.Set(fps)

	now := time.Now()
	kind := w.Source().Kind
	if w.c.Options.Overlay {
		process.DrawTimestamp(&res.Annotated, kind.Label(), now)
	}

	jpeg, err := process.EncodeJPEG(res.Annotated, w.c.Options.JPEGQuality)
	if err != nil {
		encodeFailures.Inc()
		log.Warnf("Frame encode failed: %v", err)
		return
	}

	w.logDetections(now, res.Detections)

	var sourceFPS float64
	if c := w.getCapture(); c != nil {
		sourceFPS = c.FPS()
	}
	w.c.Recorder.Write(source.Image{Mat: res.Annotated, Time: now}, sourceFPS)

	w.c.Store.Publish(jpeg, Metadata{
		Timestamp:  now,
		FPS:        fps,
		Detections: res.Detections,
		Source:     kind,
		Recording:  w.c.Recorder.IsActive(),
	})
	framesProcessed.Inc()
}

func (w *Worker) logDetections(t time.Time, dets []process.Detection) {
	if len(dets) == 0 {
		return
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("Detections: %v", process.Detections(dets).DebugString())
	}
	for _, l := range w.c.Loggers {
		if err := l.LogDetections(t, dets); err != nil {
			logFailures.Inc()
			log.Warnf("Failed to log detections: %v", err)
		}
	}
}
