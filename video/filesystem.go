package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pillash/mp4util"
	log "github.com/sirupsen/logrus"
)

const (
	RecordPrefix = "record_"
	LogPrefix    = "detections_"

	ExtVideo = ".mp4"
	ExtThumb = "_thumb.jpg"
	ExtLog   = ".csv"

	// RecordTimeLayout defines the timestamp token of recording filenames.
	// See https://golang.org/src/time/format.go.
	RecordTimeLayout = "20060102_150405.000"
	LogTimeLayout    = "20060102_150405"
)

var ErrNoRecord = errors.New("no such recording")

type VideoRecord struct {
	ID   string
	Time time.Time

	VideoPath string
	ThumbPath string

	Size     int64
	Duration time.Duration
}

// Filesystem names the files produced under the data directory and keeps an
// index of the recordings found there.
type Filesystem struct {
	BasePath string

	Records []*VideoRecord

	l sync.Mutex
}

func NewFilesystem(path string) (*Filesystem, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &Filesystem{
		BasePath: path,
	}, nil
}

// NewRecordingPath returns the output path of a recording started at t.
func (f *Filesystem) NewRecordingPath(t time.Time) string {
	return filepath.Join(f.BasePath, RecordPrefix+t.Format(RecordTimeLayout)+ExtVideo)
}

// NewLogPath returns the path of a detection log created at t.
func (f *Filesystem) NewLogPath(t time.Time) string {
	return filepath.Join(f.BasePath, LogPrefix+t.Format(LogTimeLayout)+ExtLog)
}

// ThumbPath returns the thumbnail path belonging to a recording path.
func ThumbPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, ExtVideo) + ExtThumb
}

// recordID extracts the timestamp token of a recording filename.
func recordID(name string) (string, time.Time, bool) {
	if !strings.HasPrefix(name, RecordPrefix) || !strings.HasSuffix(name, ExtVideo) {
		return "", time.Time{}, false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, RecordPrefix), ExtVideo)
	t, err := time.ParseInLocation(RecordTimeLayout, id, time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return id, t, true
}

// Refresh rescans the data directory.
func (f *Filesystem) Refresh() error {
	entries, err := os.ReadDir(f.BasePath)
	if err != nil {
		return err
	}

	var records []*VideoRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, t, ok := recordID(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(f.BasePath, e.Name())
		v := &VideoRecord{
			ID:        id,
			Time:      t,
			VideoPath: p,
			Size:      info.Size(),
		}
		if _, err := os.Stat(ThumbPath(p)); err == nil {
			v.ThumbPath = ThumbPath(p)
		}
		if secs, err := mp4util.Duration(p); err == nil {
			v.Duration = time.Duration(secs) * time.Second
		} else {
			log.Debugf("No duration for %v: %v", p, err)
		}
		records = append(records, v)
	}

	// Newest first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})

	f.l.Lock()
	defer f.l.Unlock()
	f.Records = records
	return nil
}

func (f *Filesystem) GetRecords() []*VideoRecord {
	f.l.Lock()
	defer f.l.Unlock()
	return append([]*VideoRecord(nil), f.Records...)
}

// GetRecordByID looks up a recording, rescanning the directory if it is not
// yet indexed.
func (f *Filesystem) GetRecordByID(id string) (*VideoRecord, error) {
	if _, _, ok := recordID(RecordPrefix + id + ExtVideo); !ok {
		return nil, fmt.Errorf("invalid recording id %q", id)
	}
	if r := f.find(id); r != nil {
		return r, nil
	}
	if err := f.Refresh(); err != nil {
		return nil, err
	}
	if r := f.find(id); r != nil {
		return r, nil
	}
	return nil, ErrNoRecord
}

func (f *Filesystem) find(id string) *VideoRecord {
	f.l.Lock()
	defer f.l.Unlock()
	for _, r := range f.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Delete removes a recording and its thumbnail.
func (f *Filesystem) Delete(r *VideoRecord) error {
	if err := os.Remove(r.VideoPath); err != nil {
		return err
	}
	if r.ThumbPath != "" {
		if err := os.Remove(r.ThumbPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove thumbnail %v: %v", r.ThumbPath, err)
		}
	}
	log.Infof("Deleted recording %v", r.VideoPath)

	f.l.Lock()
	defer f.l.Unlock()
	for i, v := range f.Records {
		if v.ID == r.ID {
			f.Records = append(f.Records[:i], f.Records[i+1:]...)
			break
		}
	}
	return nil
}
