package stills

import "gocv.io/x/gocv"

type IService interface {
	// Load decodes a still image into a BGR CV8UC3 Mat owned by the caller.
	Load(path string) (gocv.Mat, error)
	// Resize returns a bilinear-resized copy of frame owned by the caller.
	Resize(frame gocv.Mat, width, height int) (gocv.Mat, error)
	// Save encodes frame to path, the format follows the extension.
	Save(path string, frame gocv.Mat) error
}
