package serve

import (
	"net/http"
	"time"
)

type HealthServer struct {
	Started time.Time
	// Running reports whether the pipeline worker is alive.
	Running func() bool
}

func (s *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	running := s.Running()
	status := http.StatusOK
	state := "ok"
	if !running {
		status = http.StatusServiceUnavailable
		state = "stopped"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  state,
		"uptime":  time.Since(s.Started).Round(time.Second).String(),
		"running": running,
	})
}
