package source

import "gocv.io/x/gocv"

const platformFallbackAPI = gocv.VideoCaptureV4L2
