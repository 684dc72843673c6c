package capture

import (
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
)

// FakeService hands out a FakeDevice producing solid frames. Frames listed in
// Failures read as empty; reads past Frames (when positive) end the stream.
type FakeService struct {
	Width    int
	Height   int
	Color    model.RGB
	Frames   int
	Failures map[int]bool
	OpenErr  error

	mu     sync.Mutex
	device *FakeDevice
	opens  atomic.Int64
}

func NewFake(width, height int, color model.RGB) *FakeService {
	return &FakeService{
		Width:  width,
		Height: height,
		Color:  color,
	}
}

func (svc *FakeService) Open(_ int, _, _ int) (Device, error) {
	svc.opens.Add(1)
	if svc.OpenErr != nil {
		return nil, svc.OpenErr
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.device = &FakeDevice{svc: svc}
	return svc.device, nil
}

func (svc *FakeService) Opens() int {
	return int(svc.opens.Load())
}

// Device returns the last opened device.
func (svc *FakeService) Device() *FakeDevice {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.device
}

type FakeDevice struct {
	svc      *FakeService
	reads    atomic.Int64
	releases atomic.Int64
}

func (d *FakeDevice) Read(dst *gocv.Mat) error {
	n := int(d.reads.Add(1))
	if d.svc.Frames > 0 && n > d.svc.Frames {
		return ErrEndOfStream
	}

	if d.svc.Failures[n] {
		return ErrEmptyFrame
	}

	c := d.svc.Color
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), d.svc.Height, d.svc.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()
	return frame.CopyTo(dst)
}

func (d *FakeDevice) Release() error {
	d.releases.Add(1)
	return nil
}

func (d *FakeDevice) Reads() int {
	return int(d.reads.Load())
}

func (d *FakeDevice) Releases() int {
	return int(d.releases.Load())
}
