package stills

import (
	"image"
	"log/slog"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

type filesService struct {
}

func NewFiles() IService {
	return &filesService{}
}

func (svc *filesService) Load(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), xerrors.Errorf("error reading still image %s: %w", path, err)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), xerrors.Errorf("error decoding still image %s", path)
	}

	lgr.Logger.Debug("still image loaded",
		slog.String("path", path),
		slog.Int("cols", img.Cols()),
		slog.Int("rows", img.Rows()),
	)
	return img, nil
}

func (svc *filesService) Resize(frame gocv.Mat, width, height int) (gocv.Mat, error) {
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), xerrors.Errorf("invalid target size %dx%d", width, height)
	}

	resized := gocv.NewMat()
	// INTER_LINEAR: bilinear interpolation over a 2x2 neighborhood
	if err := gocv.Resize(frame, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear); err != nil {
		resized.Close()
		return gocv.NewMat(), xerrors.Errorf("error resizing still image: %w", err)
	}
	return resized, nil
}

func (svc *filesService) Save(path string, frame gocv.Mat) error {
	if ok := gocv.IMWrite(path, frame); !ok {
		return xerrors.Errorf("error writing image %s", path)
	}
	return nil
}
