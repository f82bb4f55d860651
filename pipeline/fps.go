package pipeline

import "time"

// FPSMeter keeps an exponentially smoothed frame rate. The first sample is
// taken as is; later samples are weighted 0.1 against 0.9 of history.
type FPSMeter struct {
	fps    float64
	primed bool
}

// Observe records the duration of one frame and returns the new estimate.
// Non-positive durations are ignored.
func (m *FPSMeter) Observe(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return m.fps
	}
	inst := 1 / elapsed.Seconds()
	if !m.primed {
		m.fps = inst
		m.primed = true
	} else {
		m.fps = 0.9*m.fps + 0.1*inst
	}
	return m.fps
}

func (m *FPSMeter) FPS() float64 {
	return m.fps
}
