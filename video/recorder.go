package video

import (
	"image"
	"sync"
	"time"

	"detectcam/video/process"
	"detectcam/video/sink"
	"detectcam/video/source"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	writerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detectcam_recording_writer_opens_total",
		Help: "Recording writer open attempts by result.",
	}, []string{"result"})
	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detectcam_recording_active",
		Help: "Whether a recording session is active.",
	})
)

// Recorder owns the lifecycle of the recording writer. Starting a session only
// arms it; the writer is opened on the next written frame so the output
// dimensions match the frames actually produced.
type Recorder struct {
	fs          *Filesystem
	writers     WriterOpener
	fallbackFPS float64

	l           sync.Mutex
	active      bool
	session     string
	path        string
	needsReopen bool
	writer      sink.Sink
	size        image.Point
	// frames counts the current file, total the whole session.
	frames int
	total  int
}

func NewRecorder(fs *Filesystem, writers WriterOpener, fallbackFPS float64) *Recorder {
	return &Recorder{
		fs:          fs,
		writers:     writers,
		fallbackFPS: fallbackFPS,
	}
}

// Start begins a recording session and returns its output path. An empty
// pathHint selects a fresh timestamped path. Starting an active session
// closes the current file and begins a new one.
func (r *Recorder) Start(pathHint string) string {
	r.l.Lock()
	defer r.l.Unlock()

	prev := ""
	if r.active {
		r.closeWriter()
		prev = r.path
	}
	path := pathHint
	if path == "" {
		path = r.nextPath(prev)
	}
	r.active = true
	r.total = 0
	r.session = uuid.NewString()
	r.path = path
	r.needsReopen = true
	recordingActive.Set(1)
	log.WithField("session", r.session).Infof("Recording started to %v", path)
	return path
}

// Stop closes the writer and ends the session. It is a no-op when no session
// is active.
func (r *Recorder) Stop() {
	r.l.Lock()
	defer r.l.Unlock()
	if !r.active {
		return
	}
	r.closeWriter()
	r.active = false
	recordingActive.Set(0)
	log.WithField("session", r.session).Infof("Recording stopped after %d frames", r.total)
}

func (r *Recorder) IsActive() bool {
	r.l.Lock()
	defer r.l.Unlock()
	return r.active
}

// ActivePath returns the file of the active session, if any.
func (r *Recorder) ActivePath() string {
	r.l.Lock()
	defer r.l.Unlock()
	if !r.active {
		return ""
	}
	return r.path
}

// MarkReopen forces the writer to be reopened on the next frame.
func (r *Recorder) MarkReopen() {
	r.l.Lock()
	defer r.l.Unlock()
	r.needsReopen = true
}

// Write appends a frame to the active session, opening the writer first if
// needed. sourceFPS is used as the output rate when positive.
func (r *Recorder) Write(frame source.Image, sourceFPS float64) {
	r.l.Lock()
	defer r.l.Unlock()
	if !r.active {
		return
	}

	size := frame.Size()
	if r.writer != nil && size != r.size {
		// Never write mismatched frames into an open file.
		r.needsReopen = true
	}
	if r.writer == nil || r.needsReopen {
		written := r.writer != nil && r.frames > 0
		r.closeWriter()
		if written {
			// Continue the session in a new file rather than truncating this one.
			r.path = r.nextPath(r.path)
		}
		if !r.openWriter(frame, size, sourceFPS) {
			return
		}
	}

	if err := r.writer.Put(frame); err != nil {
		log.Warnf("Recording write failed: %v", err)
		return
	}
	r.frames++
	r.total++
}

// nextPath returns a fresh timestamped path distinct from prev.
func (r *Recorder) nextPath(prev string) string {
	t := time.Now()
	p := r.fs.NewRecordingPath(t)
	for p == prev {
		t = t.Add(time.Millisecond)
		p = r.fs.NewRecordingPath(t)
	}
	return p
}

func (r *Recorder) openWriter(frame source.Image, size image.Point, sourceFPS float64) bool {
	fps := sourceFPS
	if fps <= 0 {
		fps = r.fallbackFPS
	}
	w, err := r.writers.Open(r.path, size, fps)
	if err != nil {
		writerOpens.WithLabelValues("error").Inc()
		log.WithField("session", r.session).Errorf("Failed to open recording writer for %v: %v", r.path, err)
		r.active = false
		recordingActive.Set(0)
		return false
	}
	writerOpens.WithLabelValues("ok").Inc()
	log.WithField("session", r.session).Infof("Recording writer opened %v at %vx%v, %.1f fps", r.path, size.X, size.Y, fps)
	r.writer = w
	r.size = size
	r.needsReopen = false
	r.frames = 0

	thumb := ThumbPath(r.path)
	if err := process.WriteThumb(thumb, frame.Mat); err != nil {
		log.Warnf("Failed to generate thumbnail: %v", err)
	}
	return true
}

func (r *Recorder) closeWriter() {
	if r.writer == nil {
		return
	}
	if err := r.writer.Close(); err != nil {
		log.Warnf("Error closing recording writer for %v: %v", r.path, err)
	}
	r.writer = nil
}

// Close ends any active session.
func (r *Recorder) Close() {
	r.Stop()
}
