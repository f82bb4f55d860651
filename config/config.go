package config

import (
	"strconv"
	"time"
)

type ModelConfig struct {
	// Path to the network weights (.onnx, .caffemodel, .pb, ...).
	Path string
	// Optional network description (.prototxt, .pbtxt) for formats that need one.
	ConfigPath string
	// Optional class label file, one name per line. Line N is class id N.
	LabelsPath string

	Confidence float64
	InputSize  int
	Scale      float64
	Mean       float64
	SwapRB     bool
}

type NotifyConfig struct {
	// Classes of interest. Empty means every class.
	Classes       []string
	MinConfidence float64
	CooldownSec   int
	// Contact address handed to push services.
	Subscriber string
}

type Config struct {
	Port      int
	StaticDir string
	// DataDir receives the detection log and recordings.
	DataDir string

	// Source is the initial video source: a webcam index ("0", "1") or a file
	// path. Empty means webcam 0.
	Source string
	// DefaultVideoPath is the target of the switch-to-file command.
	DefaultVideoPath string

	Model ModelConfig

	JPEGQuality int
	// FallbackFPS is used for recordings when the source does not report a
	// frame rate.
	FallbackFPS float64

	RecordBackend      string
	RecordCodec        string
	NormalizeRecordFPS bool
	// OverlayTimestamp stamps the source and time onto published frames.
	OverlayTimestamp bool

	StreamIntervalMs int
	MetaIntervalMs   int
	StopTimeoutMs    int
	MaxReadFailures  int

	// DatabaseDSN enables detection history and web push when set.
	DatabaseDSN string

	Notify NotifyConfig
}

const (
	RecordBackendOpenCV = "opencv"
	RecordBackendFFmpeg = "ffmpeg"
)

func Default() *Config {
	return &Config{
		Port:    8080,
		DataDir: "./data",
		Model: ModelConfig{
			Confidence: 0.6,
			InputSize:  300,
			Scale:      0.007843,
			Mean:       127.5,
		},
		JPEGQuality:      80,
		FallbackFPS:      30,
		RecordBackend:    RecordBackendOpenCV,
		RecordCodec:      "mp4v",
		StreamIntervalMs: 20,
		MetaIntervalMs:   100,
		StopTimeoutMs:    2000,
		MaxReadFailures:  5,
		Notify: NotifyConfig{
			MinConfidence: 0.9,
			CooldownSec:   60,
		},
	}
}

// WebcamIndex reports whether Source addresses a webcam, and which one.
func (c *Config) WebcamIndex() (int, bool) {
	if c.Source == "" {
		return 0, true
	}
	i, err := strconv.Atoi(c.Source)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMs) * time.Millisecond
}

func (c *Config) MetaInterval() time.Duration {
	return time.Duration(c.MetaIntervalMs) * time.Millisecond
}

func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Notify.CooldownSec) * time.Second
}
