package serve

import (
	"net/http"

	"detectcam/video"

	log "github.com/sirupsen/logrus"
)

type DeleteServer struct {
	FS *video.Filesystem
	// Active returns the path of the recording being written, if any.
	Active func() string
}

func (s *DeleteServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	vr := lookup(s.FS, w, r)
	if vr == nil {
		return
	}
	if s.Active != nil && s.Active() == vr.VideoPath {
		http.Error(w, "recording in progress", http.StatusConflict)
		return
	}

	if err := s.FS.Delete(vr); err != nil {
		log.Errorf("Failed to delete %v: %v", vr.VideoPath, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": vr.ID})
}
