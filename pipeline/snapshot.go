package pipeline

import (
	"encoding/json"
	"math"
	"time"

	"detectcam/video/process"
	"detectcam/video/source"
)

// TimeLayout formats metadata timestamps, always in UTC.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Metadata describes one processed frame.
type Metadata struct {
	Timestamp  time.Time
	FPS        float64
	Detections []process.Detection
	Source     source.Kind
	Recording  bool
}

// Snapshot is a published frame. Snapshots are immutable once published;
// readers must not modify the JPEG bytes or the detections.
type Snapshot struct {
	Seq  uint64
	JPEG []byte
	Meta Metadata
}

type detectionMessage struct {
	ClassID   int     `json:"class_id"`
	ClassName string  `json:"class_name"`
	Conf      float64 `json:"conf"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
}

// MetaMessage is the wire form of Metadata served to clients.
type MetaMessage struct {
	TS         *string            `json:"ts"`
	FPS        float64            `json:"fps"`
	Detections []detectionMessage `json:"detections"`
	Source     string             `json:"source,omitempty"`
	Recording  *bool              `json:"recording,omitempty"`
}

// Message converts the metadata of s for the wire. A nil snapshot yields the
// empty message sent before the first frame.
func (s *Snapshot) Message() MetaMessage {
	if s == nil {
		return MetaMessage{Detections: []detectionMessage{}}
	}
	m := s.Meta
	ts := m.Timestamp.UTC().Format(TimeLayout)
	rec := m.Recording
	msg := MetaMessage{
		TS:         &ts,
		FPS:        math.Round(m.FPS*100) / 100,
		Detections: make([]detectionMessage, 0, len(m.Detections)),
		Source:     m.Source.Label(),
		Recording:  &rec,
	}
	for _, d := range m.Detections {
		msg.Detections = append(msg.Detections, detectionMessage{
			ClassID:   d.ClassID,
			ClassName: d.ClassName,
			Conf:      d.Confidence,
			X1:        d.Box.X1,
			Y1:        d.Box.Y1,
			X2:        d.Box.X2,
			Y2:        d.Box.Y2,
		})
	}
	return msg
}

// MarshalMeta encodes the wire metadata of s, which may be nil.
func MarshalMeta(s *Snapshot) ([]byte, error) {
	return json.Marshal(s.Message())
}
