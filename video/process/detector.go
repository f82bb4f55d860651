package process

import (
	"fmt"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

// Box is a bounding box in pixel coordinates of the source frame.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Detection is a single object found in a frame. Detections are values and
// are never modified once produced.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        Box
}

// Result is the output of a Detector for one frame. The caller owns Annotated
// and must Close it.
type Result struct {
	Annotated  gocv.Mat
	Detections []Detection
}

// Detector finds objects in frames.
type Detector interface {
	// Detect runs inference on frame, which is not modified. Detections are
	// returned in model output order.
	Detect(frame gocv.Mat) (Result, error)

	Close() error
}

// Detections is a per-frame list of detections.
type Detections []Detection

// Best returns the highest confidence detection accepted by keep.
func (d Detections) Best(keep func(Detection) bool) (Detection, bool) {
	var best Detection
	found := false
	for _, det := range d {
		if keep != nil && !keep(det) {
			continue
		}
		if !found || det.Confidence > best.Confidence {
			best = det
			found = true
		}
	}
	return best, found
}

func (d Detections) DebugString() string {
	sorted := append(Detections(nil), d...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	var ds []string
	for _, det := range sorted {
		ds = append(ds, fmt.Sprintf("%s: %.2f", det.ClassName, det.Confidence))
	}
	return strings.Join(ds, ", ")
}
