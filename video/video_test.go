package video

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"detectcam/config"
	"detectcam/video/sink"
	"detectcam/video/source"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFilesystemPaths(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(filepath.Join(dir, "data"))
	require.NoError(t, err)

	ts := time.Date(2024, 3, 5, 14, 7, 9, 123456789, time.Local)
	assert.Equal(t, filepath.Join(dir, "data", "record_20240305_140709.123.mp4"), fs.NewRecordingPath(ts))
	assert.Equal(t, filepath.Join(dir, "data", "detections_20240305_140709.csv"), fs.NewLogPath(ts))
	assert.Equal(t, "/x/record_1_thumb.jpg", ThumbPath("/x/record_1.mp4"))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
}

func TestFilesystemRecords(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	older := fs.NewRecordingPath(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	newer := fs.NewRecordingPath(time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local))
	touch(t, older)
	touch(t, newer)
	touch(t, ThumbPath(newer))
	touch(t, fs.NewLogPath(time.Now()))
	touch(t, filepath.Join(fs.BasePath, "record_garbage.mp4"))

	require.NoError(t, fs.Refresh())
	records := fs.GetRecords()
	require.Len(t, records, 2)
	assert.Equal(t, "20240102_100000.000", records[0].ID)
	assert.Equal(t, ThumbPath(newer), records[0].ThumbPath)
	assert.Equal(t, int64(4), records[0].Size)
	assert.Equal(t, "20240101_100000.000", records[1].ID)
	assert.Empty(t, records[1].ThumbPath)

	r, err := fs.GetRecordByID("20240102_100000.000")
	require.NoError(t, err)
	require.NoError(t, fs.Delete(r))
	assert.NoFileExists(t, newer)
	assert.NoFileExists(t, ThumbPath(newer))
	assert.Len(t, fs.GetRecords(), 1)

	_, err = fs.GetRecordByID("20240102_100000.000")
	assert.ErrorIs(t, err, ErrNoRecord)
	_, err = fs.GetRecordByID("../../etc/passwd")
	assert.Error(t, err)
}

func TestGetRecordByIDRescans(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	p := fs.NewRecordingPath(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	touch(t, p)

	r, err := fs.GetRecordByID("20240101_100000.000")
	require.NoError(t, err)
	assert.Equal(t, p, r.VideoPath)
}

func TestNewWriterFactory(t *testing.T) {
	c := config.Default()
	f, err := NewWriterFactory(c)
	require.NoError(t, err)
	assert.Equal(t, config.RecordBackendOpenCV, f.Backend)
	assert.Equal(t, "mp4v", f.Codec)

	c.RecordBackend = "vhs"
	_, err = NewWriterFactory(c)
	assert.Error(t, err)

	c.RecordBackend = config.RecordBackendFFmpeg
	t.Setenv("FFMPEG", "/no/such/ffmpeg")
	t.Setenv("PATH", "")
	_, err = NewWriterFactory(c)
	assert.Error(t, err)
}

type fakeWriter struct {
	path   string
	size   image.Point
	fps    float64
	frames int
	closed bool
}

func (w *fakeWriter) Put(input source.Image) error {
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeWriters struct {
	opened []*fakeWriter
	fail   bool
}

func (f *fakeWriters) Open(path string, size image.Point, fps float64) (sink.Sink, error) {
	if f.fail {
		return nil, errors.New("codec unavailable")
	}
	w := &fakeWriter{path: path, size: size, fps: fps}
	f.opened = append(f.opened, w)
	return w, nil
}

func frame(w, h int) source.Image {
	return source.Image{
		Mat:  gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3),
		Time: time.Now(),
	}
}

func newTestRecorder(t *testing.T, writers WriterOpener) *Recorder {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return NewRecorder(fs, writers, 30)
}

func TestRecorderLazyOpen(t *testing.T) {
	writers := &fakeWriters{}
	r := newTestRecorder(t, writers)
	f := frame(64, 48)
	defer f.Mat.Close()

	// Inactive recorder ignores frames.
	r.Write(f, 25)
	assert.Empty(t, writers.opened)

	path := r.Start("")
	assert.True(t, strings.HasPrefix(filepath.Base(path), RecordPrefix))
	assert.True(t, r.IsActive())
	assert.Equal(t, path, r.ActivePath())
	assert.Empty(t, writers.opened, "writer opens on first frame")

	r.Write(f, 25)
	r.Write(f, 25)
	require.Len(t, writers.opened, 1)
	w := writers.opened[0]
	assert.Equal(t, path, w.path)
	assert.Equal(t, image.Pt(64, 48), w.size)
	assert.Equal(t, 25.0, w.fps)
	assert.Equal(t, 2, w.frames)
	assert.FileExists(t, ThumbPath(path))

	r.Stop()
	assert.True(t, w.closed)
	assert.False(t, r.IsActive())
	assert.Empty(t, r.ActivePath())

	// Second stop is a no-op.
	r.Stop()
	assert.False(t, r.IsActive())
	assert.Len(t, writers.opened, 1)
}

func TestRecorderFallbackFPS(t *testing.T) {
	writers := &fakeWriters{}
	r := newTestRecorder(t, writers)
	f := frame(32, 32)
	defer f.Mat.Close()

	r.Start("")
	r.Write(f, 0)
	require.Len(t, writers.opened, 1)
	assert.Equal(t, 30.0, writers.opened[0].fps)
}

func TestRecorderReopenOnSizeChange(t *testing.T) {
	writers := &fakeWriters{}
	r := newTestRecorder(t, writers)
	small := frame(32, 24)
	defer small.Mat.Close()
	big := frame(64, 48)
	defer big.Mat.Close()

	r.Start("")
	r.Write(small, 10)
	r.Write(big, 10)
	require.Len(t, writers.opened, 2)
	assert.True(t, writers.opened[0].closed)
	assert.Equal(t, image.Pt(32, 24), writers.opened[0].size)
	assert.Equal(t, image.Pt(64, 48), writers.opened[1].size)
	assert.Equal(t, 1, writers.opened[1].frames)
	r.Stop()
}

func TestRecorderMarkReopen(t *testing.T) {
	writers := &fakeWriters{}
	r := newTestRecorder(t, writers)
	f := frame(32, 24)
	defer f.Mat.Close()

	r.Start("")
	r.Write(f, 10)
	r.Write(f, 10)
	r.MarkReopen()
	r.Write(f, 10)
	require.Len(t, writers.opened, 2)
	assert.True(t, writers.opened[0].closed)
	assert.NotEqual(t, writers.opened[0].path, writers.opened[1].path)
	assert.Equal(t, 1, writers.opened[1].frames)

	hook := test.NewGlobal()
	defer hook.Reset()
	r.Stop()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Recording stopped after 3 frames", hook.LastEntry().Message)

	r.Start("")
	r.Stop()
	assert.Equal(t, "Recording stopped after 0 frames", hook.LastEntry().Message)
}

func TestRecorderRestart(t *testing.T) {
	writers := &fakeWriters{}
	r := newTestRecorder(t, writers)
	f := frame(32, 24)
	defer f.Mat.Close()

	dir := t.TempDir()
	first := r.Start(filepath.Join(dir, "a.mp4"))
	r.Write(f, 10)
	second := r.Start(filepath.Join(dir, "b.mp4"))
	assert.NotEqual(t, first, second)
	assert.True(t, writers.opened[0].closed)
	r.Write(f, 10)
	require.Len(t, writers.opened, 2)
	assert.Equal(t, second, writers.opened[1].path)
	r.Close()
	assert.True(t, writers.opened[1].closed)
}

func TestRecorderOpenFailureDeactivates(t *testing.T) {
	r := newTestRecorder(t, &fakeWriters{fail: true})
	f := frame(32, 24)
	defer f.Mat.Close()

	r.Start("")
	r.Write(f, 10)
	assert.False(t, r.IsActive())
}
