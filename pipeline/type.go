package pipeline

import (
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/capture"
	"github.com/khaledhikmat/vbg-go/service/config"
	"github.com/khaledhikmat/vbg-go/service/data"
	"github.com/khaledhikmat/vbg-go/service/segmentation"
	"github.com/khaledhikmat/vbg-go/service/stills"
)

var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrInvalidKernel    = errors.New("kernel size must be odd and positive")
	ErrInvalidMask      = errors.New("invalid mask")
	ErrInvalidStops     = errors.New("at least 2 color stops are required")
	ErrInferenceTimeout = errors.New("inference timeout")
	ErrTooManyFailures  = errors.New("too many consecutive recoverable failures")
)

// ServicesFactory carries the collaborators a mode processor wires into
// the pipeline. Displays are chosen by the mode itself.
type ServicesFactory struct {
	CfgSvc          config.IService
	DataSvc         data.IService
	CaptureSvc      capture.IService
	SegmentationSvc segmentation.IService
	StillsSvc       stills.IService
}

// FrameData is a captured frame owned by the tick that produced it.
type FrameData struct {
	Mat       gocv.Mat
	Seq       int64
	Timestamp time.Time
}

// Shape describes a Mat for error context.
type Shape struct {
	Rows     int `json:"rows"`
	Cols     int `json:"cols"`
	Channels int `json:"channels"`
}

func shapeOf(m gocv.Mat) Shape {
	if m.Empty() {
		return Shape{}
	}
	return Shape{Rows: m.Rows(), Cols: m.Cols(), Channels: m.Channels()}
}

func scalarOf(c model.RGB) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}

// matFromBGR copies a packed BGR buffer into a Mat owned by the caller.
func matFromBGR(rows, cols int, buf []byte) (gocv.Mat, error) {
	shared, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer shared.Close()
	return shared.Clone(), nil
}
