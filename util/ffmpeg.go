package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FFmpegEnv names the environment variable which may override the ffmpeg
// binary location.
const FFmpegEnv = "FFMPEG"

// LocateFFmpeg returns the path of the ffmpeg binary, preferring $FFMPEG over
// a $PATH lookup.
func LocateFFmpeg() (string, error) {
	if p := os.Getenv(FFmpegEnv); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%q: %w", FFmpegEnv, p, err)
		}
		return p, nil
	}
	return exec.LookPath("ffmpeg")
}
