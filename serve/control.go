package serve

import (
	"encoding/json"
	"net/http"
	"strconv"

	"detectcam/pipeline"

	log "github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// command adapts a control operation to an endpoint accepting GET or POST.
func command(f func(r *http.Request) (int, pipeline.Result)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, pipeline.Result{Error: "method not allowed"})
			return
		}
		status, res := f(r)
		log.WithField("addr", r.RemoteAddr).Debugf("%v -> %+v", r.URL.Path, res)
		writeJSON(w, status, res)
	}
}

// ControlServer exposes source switching and recording control.
type ControlServer struct {
	Control *pipeline.Control
}

func (s *ControlServer) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/use_webcam", command(func(r *http.Request) (int, pipeline.Result) {
		return http.StatusOK, s.Control.UseWebcam()
	}))
	mux.HandleFunc("/api/use_video", command(func(r *http.Request) (int, pipeline.Result) {
		return http.StatusOK, s.Control.UseVideo()
	}))
	mux.HandleFunc("/api/use_camera", command(func(r *http.Request) (int, pipeline.Result) {
		i := r.URL.Query().Get("i")
		if i == "" {
			i = "0"
		}
		idx, err := strconv.Atoi(i)
		if err != nil {
			return http.StatusBadRequest, pipeline.Result{Error: "invalid index"}
		}
		return http.StatusOK, s.Control.UseCamera(idx)
	}))
	mux.HandleFunc("/api/start_recording", command(func(r *http.Request) (int, pipeline.Result) {
		return http.StatusOK, s.Control.StartRecording()
	}))
	mux.HandleFunc("/api/stop_recording", command(func(r *http.Request) (int, pipeline.Result) {
		return http.StatusOK, s.Control.StopRecording()
	}))
}
