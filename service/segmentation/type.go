package segmentation

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// ErrUnsupportedFrame is returned when the model cannot accept a frame.
// It is a session-level failure, not a per-frame one.
var ErrUnsupportedFrame = errors.New("unsupported frame")

type IService interface {
	// Segment returns a CV32FC1 mask of foreground probabilities in [0,1]
	// with the same width and height as frame. frame is read-only.
	// On error the returned Mat is empty and still owned by the caller.
	Segment(ctx context.Context, frame gocv.Mat) (gocv.Mat, error)
	Close() error
}
