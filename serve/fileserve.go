package serve

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"detectcam/video"
)

// TODO limit read parallelism to avoid disk thrashing?

type FileServer struct {
	FS          *video.Filesystem
	PathFunc    func(r *video.VideoRecord) string
	ContentType string
}

func NewVideoServer(fs *video.Filesystem) *FileServer {
	return &FileServer{
		FS: fs,
		PathFunc: func(r *video.VideoRecord) string {
			return r.VideoPath
		},
		ContentType: "video/mp4",
	}
}

func NewThumbServer(fs *video.Filesystem) *FileServer {
	return &FileServer{
		FS: fs,
		PathFunc: func(r *video.VideoRecord) string {
			return r.ThumbPath
		},
		ContentType: "image/jpeg",
	}
}

// lookup resolves the id parameter of r, writing an error response on failure.
func lookup(fs *video.Filesystem, w http.ResponseWriter, r *http.Request) *video.VideoRecord {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	id := r.Form.Get("id")
	vr, err := fs.GetRecordByID(id)
	switch {
	case errors.Is(err, video.ErrNoRecord):
		http.Error(w, fmt.Sprintf("No record found for id %v", id), http.StatusNotFound)
		return nil
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	return vr
}

func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vr := lookup(s.FS, w, r)
	if vr == nil {
		return
	}
	p := s.PathFunc(vr)
	if p == "" {
		http.Error(w, "not available", http.StatusNotFound)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", s.ContentType)
	// ServeContent handles range requests so browsers can seek.
	http.ServeContent(w, r, "", st.ModTime(), f)
}
