package segmentation

import (
	"context"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// FakeService returns a constant probability mask.
type FakeService struct {
	Value  float32
	Delay  time.Duration
	Reject bool

	calls atomic.Int64
}

func NewFake(value float32) *FakeService {
	return &FakeService{
		Value: value,
	}
}

func (svc *FakeService) Segment(ctx context.Context, frame gocv.Mat) (gocv.Mat, error) {
	svc.calls.Add(1)

	if svc.Reject || frame.Empty() {
		return gocv.NewMat(), ErrUnsupportedFrame
	}

	if svc.Delay > 0 {
		select {
		case <-ctx.Done():
			return gocv.NewMat(), ctx.Err()
		case <-time.After(svc.Delay):
		}
	}

	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(svc.Value), 0, 0, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC1), nil
}

func (svc *FakeService) Calls() int {
	return int(svc.calls.Load())
}

func (svc *FakeService) Close() error {
	return nil
}
