package process

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface. Results
// are scripted per call; once the script is exhausted the default detections
// are returned.
type MockDetector struct {
	mu       sync.Mutex
	script   [][]Detection
	defaults []Detection
	err      error
	calls    int
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections returned on every call.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = dets
}

// SetScript sets the detections for the next calls, one entry per call.
func (m *MockDetector) SetScript(script [][]Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
	m.calls = 0
}

func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns a clone of the frame as the annotated image.
func (m *MockDetector) Detect(frame gocv.Mat) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	dets := m.defaults
	if m.calls < len(m.script) {
		dets = m.script[m.calls]
	}
	m.calls++
	return Result{
		Annotated:  frame.Clone(),
		Detections: append([]Detection(nil), dets...),
	}, nil
}

func (m *MockDetector) Close() error {
	return nil
}
