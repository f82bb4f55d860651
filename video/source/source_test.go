package source

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestTarget(t *testing.T) {
	cam := WebcamTarget(2)
	assert.Equal(t, "webcam", cam.Kind.Label())
	assert.False(t, cam.Loops())
	assert.Equal(t, "webcam 2", cam.String())

	file := FileTarget("/tmp/reef.mp4")
	assert.Equal(t, "file", file.Kind.Label())
	assert.True(t, file.Loops())
	assert.Equal(t, `file "/tmp/reef.mp4"`, file.String())
}

func TestMockOpener_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	target := FileTarget("clip.mp4")
	o := NewMockOpener()
	o.SetFrames(target, []gocv.Mat{frame1, frame2})
	o.SetFPS(target, 25)

	c, err := o.Open(target)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 25.0, c.FPS())

	dst := gocv.NewMat()
	defer dst.Close()

	require.NoError(t, c.Read(&dst))
	assert.Equal(t, 640, dst.Cols())
	require.NoError(t, c.Read(&dst))
	assert.Equal(t, 320, dst.Cols())

	assert.True(t, errors.Is(c.Read(&dst), ErrEndOfStream))

	require.NoError(t, c.Rewind())
	require.NoError(t, c.Read(&dst))
	assert.Equal(t, 640, dst.Cols())
}

func TestMockOpener_Failing(t *testing.T) {
	target := WebcamTarget(0)
	o := NewMockOpener()

	_, err := o.Open(target)
	assert.Error(t, err, "unregistered target should not open")

	o.SetFrames(target, nil)
	o.SetFailing(target, true)
	_, err = o.Open(target)
	assert.Error(t, err)

	o.SetFailing(target, false)
	require.NoError(t, Probe(o, target))
	assert.Equal(t, 0, o.OpenCount(), "probe must release the capture")
	assert.Equal(t, []Target{target}, o.Opened())
}

func TestMockCapture_ClosedRead(t *testing.T) {
	target := WebcamTarget(0)
	o := NewMockOpener()
	o.SetFrames(target, nil)
	c, err := o.Open(target)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	dst := gocv.NewMat()
	defer dst.Close()
	assert.True(t, errors.Is(c.Read(&dst), ErrNotOpen))
}

func TestVideoCaptureOpener_MissingFile(t *testing.T) {
	o := NewVideoCaptureOpener()
	_, err := o.Open(FileTarget(filepath.Join(t.TempDir(), "missing.mp4")))
	assert.Error(t, err)
}

func TestVideoCaptureOpener_OutOfRangeWebcam(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping device probe in short mode")
	}
	o := NewVideoCaptureOpener()
	assert.Error(t, Probe(o, WebcamTarget(9999)))
}

func TestVideoCaptureOpener_Webcam_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	o := NewVideoCaptureOpener()
	c, err := o.Open(WebcamTarget(0))
	if err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer c.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	require.NoError(t, c.Read(&dst))
	assert.False(t, dst.Empty())
}
