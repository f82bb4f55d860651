package process

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Labels maps class ids to names.
type Labels map[int]string

// Detection classes for MobileNet SSD, used when no label file is configured.
var mobileNetClasses = Labels{
	0: "background",
	1: "aeroplane", 2: "bicycle", 3: "bird", 4: "boat",
	5: "bottle", 6: "bus", 7: "car", 8: "cat", 9: "chair",
	10: "cow", 11: "diningtable", 12: "dog", 13: "horse",
	14: "motorbike", 15: "person", 16: "pottedplant",
	17: "sheep", 18: "sofa", 19: "train", 20: "tvmonitor",
}

func DefaultLabels() Labels {
	return mobileNetClasses
}

// ReadLabels loads one class name per line; line N names class N. Blank
// lines keep their index but have no name.
func ReadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := make(Labels)
	s := bufio.NewScanner(f)
	for i := 0; s.Scan(); i++ {
		if name := strings.TrimSpace(s.Text()); name != "" {
			l[i] = name
		}
	}
	return l, s.Err()
}

// Name falls back to the numeric id for unknown classes.
func (l Labels) Name(id int) string {
	if n, ok := l[id]; ok {
		return n
	}
	return strconv.Itoa(id)
}
