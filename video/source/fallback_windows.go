package source

import "gocv.io/x/gocv"

// DirectShow opens many webcams that the MSMF default rejects.
const platformFallbackAPI = gocv.VideoCaptureDshow
