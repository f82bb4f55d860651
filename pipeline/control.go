package pipeline

import (
	"fmt"
	"os"

	"detectcam/config"
	"detectcam/video"
	"detectcam/video/source"

	log "github.com/sirupsen/logrus"
)

// Result is the outcome of a control command.
type Result struct {
	OK     bool   `json:"ok"`
	Source string `json:"source,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

func failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Control validates commands and turns them into requests for the Worker and
// Recorder. Source switches are probed synchronously so that unusable
// targets are rejected immediately; the switch itself is applied later by
// the worker.
type Control struct {
	Worker   *Worker
	Recorder *video.Recorder
	Opener   source.Opener
	// Config supplies the default video path.
	Config func() *config.Config
}

// UseCamera switches to webcam index.
func (c *Control) UseCamera(index int) Result {
	if index < 0 {
		return failure("Webcam %d not available", index)
	}
	t := source.WebcamTarget(index)
	if c.Worker.Source() == t {
		// Already streaming from it; a second open of a busy device may fail.
		c.Worker.RequestSwitch(t)
		return Result{OK: true, Source: t.Kind.Label(), Index: &index}
	}
	if err := source.Probe(c.Opener, t); err != nil {
		log.Warnf("Rejected switch to %v: %v", t, err)
		return failure("Webcam %d not available", index)
	}
	c.Worker.RequestSwitch(t)
	return Result{OK: true, Source: t.Kind.Label(), Index: &index}
}

// UseWebcam switches to the default webcam.
func (c *Control) UseWebcam() Result {
	return c.UseCamera(0)
}

// UseVideo switches to the configured default video file.
func (c *Control) UseVideo() Result {
	path := c.Config().DefaultVideoPath
	if path == "" {
		return failure("sample video not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return failure("Sample video not found")
	}
	t := source.FileTarget(path)
	if err := source.Probe(c.Opener, t); err != nil {
		log.Warnf("Rejected switch to %v: %v", t, err)
		return failure("Cannot open video: %s", path)
	}
	c.Worker.RequestSwitch(t)
	return Result{OK: true, Source: t.Kind.Label(), Path: path}
}

// StartRecording begins a new recording session, restarting any active one.
func (c *Control) StartRecording() Result {
	path := c.Recorder.Start("")
	return Result{OK: true, Path: path}
}

// StopRecording ends the active session, if any.
func (c *Control) StopRecording() Result {
	c.Recorder.Stop()
	return Result{OK: true}
}
