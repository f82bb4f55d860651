package serve

import (
	"net/http"

	"detectcam/pipeline"
	"detectcam/video"
)

// DetectionServer serves the metadata of the latest published frame.
type DetectionServer struct {
	Store *pipeline.Store
}

func (s *DetectionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, s.Store.Latest().Message())
}

type MetaEntry struct {
	ID        string
	Timestamp int64

	HaveThumb bool
	Active    bool

	Size        int64
	DurationSec int
}

type MetaResponse struct {
	Items []*MetaEntry

	ItemsTotalSize  int64
	ItemsCount      int
	OldestTimestamp int64
}

func toMetaEntry(r *video.VideoRecord, active string) *MetaEntry {
	return &MetaEntry{
		ID:          r.ID,
		Timestamp:   r.Time.Unix(),
		HaveThumb:   r.ThumbPath != "",
		Active:      r.VideoPath == active,
		Size:        r.Size,
		DurationSec: int(r.Duration.Seconds()),
	}
}

// RecordingsServer lists the recordings in the data directory, newest first.
type RecordingsServer struct {
	FS *video.Filesystem
	// Active returns the path of the recording being written, if any.
	Active func() string
}

func (s *RecordingsServer) BuildResponse() (*MetaResponse, error) {
	if err := s.FS.Refresh(); err != nil {
		return nil, err
	}
	active := ""
	if s.Active != nil {
		active = s.Active()
	}
	records := s.FS.GetRecords()

	resp := &MetaResponse{
		Items: []*MetaEntry{},
	}
	var sz int64
	for _, r := range records {
		resp.Items = append(resp.Items, toMetaEntry(r, active))
		sz += r.Size
		resp.OldestTimestamp = r.Time.Unix()
	}
	resp.ItemsTotalSize = sz
	resp.ItemsCount = len(records)
	return resp, nil
}

func (s *RecordingsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := s.BuildResponse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
