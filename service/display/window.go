package display

import (
	"gocv.io/x/gocv"
)

type windowService struct {
	window *gocv.Window
}

// NewWindow opens a native window. It must be created and used from the
// goroutine that runs the frame loop.
func NewWindow(name string) IService {
	return &windowService{
		window: gocv.NewWindow(name),
	}
}

func (svc *windowService) Show(_ string, frame gocv.Mat) error {
	defer frame.Close()
	return svc.window.IMShow(frame)
}

func (svc *windowService) PollKey(timeoutMs int) (int, bool) {
	if timeoutMs < 1 {
		timeoutMs = 1
	}

	key := svc.window.WaitKey(timeoutMs)
	if key < 0 {
		return 0, false
	}
	return key & 0xFF, true
}

func (svc *windowService) Close() error {
	return svc.window.Close()
}
