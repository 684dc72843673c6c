package capture

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrEmptyFrame is a transient read failure; the caller may retry.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrEndOfStream means the source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Device is an opened capture handle.
type Device interface {
	// Read fills dst with the next frame (BGR, CV8UC3).
	Read(dst *gocv.Mat) error
	Release() error
}

type IService interface {
	Open(device int, width, height int) (Device, error)
}
