//go:build !windows && !linux

package source

import "gocv.io/x/gocv"

// No alternate backend worth trying.
const platformFallbackAPI = gocv.VideoCaptureAny
