package capture

import (
	"log/slog"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

type cameraService struct {
}

func NewCamera() IService {
	return &cameraService{}
}

type cameraDevice struct {
	index  int
	webcam *gocv.VideoCapture
}

func (svc *cameraService) Open(device int, width, height int) (Device, error) {
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, xerrors.Errorf("error opening capture device %d: %w", device, err)
	}

	if !webcam.IsOpened() {
		webcam.Close()
		return nil, xerrors.Errorf("capture device %d is not opened", device)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))

	lgr.Logger.Info(
		"capture device opened",
		slog.Int("device", device),
		slog.Float64("width", webcam.Get(gocv.VideoCaptureFrameWidth)),
		slog.Float64("height", webcam.Get(gocv.VideoCaptureFrameHeight)),
	)

	return &cameraDevice{
		index:  device,
		webcam: webcam,
	}, nil
}

func (d *cameraDevice) Read(dst *gocv.Mat) error {
	if ok := d.webcam.Read(dst); !ok || dst.Empty() {
		return ErrEmptyFrame
	}
	return nil
}

func (d *cameraDevice) Release() error {
	lgr.Logger.Info(
		"capture device released",
		slog.Int("device", d.index),
	)
	return d.webcam.Close()
}
