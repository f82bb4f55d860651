package source

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockOpener plays back pre-recorded frames for testing. Targets must be
// registered with SetFrames before they can be opened.
type MockOpener struct {
	mu      sync.Mutex
	frames  map[Target][]gocv.Mat
	fps     map[Target]float64
	failing map[Target]bool
	gates   map[Target]<-chan struct{}
	opened  []Target
	live    []*MockCapture
}

func NewMockOpener() *MockOpener {
	return &MockOpener{
		frames:  make(map[Target][]gocv.Mat),
		fps:     make(map[Target]float64),
		failing: make(map[Target]bool),
		gates:   make(map[Target]<-chan struct{}),
	}
}

// SetFrames registers t with the frames it will yield. The opener does not
// take ownership of the Mats.
func (o *MockOpener) SetFrames(t Target, frames []gocv.Mat) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames[t] = frames
}

func (o *MockOpener) SetFPS(t Target, fps float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fps[t] = fps
}

// SetFailing makes subsequent opens of t fail (or succeed again).
func (o *MockOpener) SetFailing(t Target, failing bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failing[t] = failing
}

// SetGate makes every Read on captures of t opened afterwards block until
// gate is closed.
func (o *MockOpener) SetGate(t Target, gate <-chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gates[t] = gate
}

func (o *MockOpener) Open(t Target) (Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames, ok := o.frames[t]
	if !ok || o.failing[t] {
		return nil, fmt.Errorf("open %v: not available", t)
	}
	o.opened = append(o.opened, t)
	c := &MockCapture{frames: frames, fps: o.fps[t], gate: o.gates[t], running: true}
	o.live = append(o.live, c)
	return c, nil
}

// Opened returns every target successfully opened so far, in order.
func (o *MockOpener) Opened() []Target {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Target(nil), o.opened...)
}

// OpenCount returns how many captures are currently open.
func (o *MockOpener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.live {
		if c.IsOpen() {
			n++
		}
	}
	return n
}

// MockCapture is the Capture returned by MockOpener.
type MockCapture struct {
	mu      sync.Mutex
	frames  []gocv.Mat
	index   int
	fps     float64
	gate    <-chan struct{}
	running bool
}

func (c *MockCapture) Read(dst *gocv.Mat) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotOpen
	}
	if c.index >= len(c.frames) {
		return ErrEndOfStream
	}
	c.frames[c.index].CopyTo(dst)
	c.index++
	return nil
}

func (c *MockCapture) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotOpen
	}
	c.index = 0
	return nil
}

func (c *MockCapture) FPS() float64 {
	return c.fps
}

func (c *MockCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCapture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
