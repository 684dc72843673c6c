package segmentation

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/service/lgr"
)

// Input size of the landscape selfie segmentation model
const (
	dnnInputWidth  = 256
	dnnInputHeight = 144
)

type dnnService struct {
	// WARNING: net is not thread-safe!!!
	mu        sync.Mutex
	net       gocv.Net
	inputSize image.Point
}

// NewDNN loads an ONNX selfie segmentation model that outputs a single
// channel probability map.
func NewDNN(modelPath string) (IService, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, xerrors.Errorf("no segmentation model exists at %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, xerrors.Errorf("error reading segmentation model %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting backend: %w", err)
	}

	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting target: %w", err)
	}

	lgr.Logger.Info("segmentation model loaded",
		slog.String("model", modelPath),
		slog.String("openCV", gocv.Version()),
	)

	return &dnnService{
		net:       net,
		inputSize: image.Pt(dnnInputWidth, dnnInputHeight),
	}, nil
}

func (svc *dnnService) Segment(ctx context.Context, frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() || frame.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("%w: %dx%d with %d channels", ErrUnsupportedFrame, frame.Cols(), frame.Rows(), frame.Channels())
	}

	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	// The model expects RGB in [0,1]
	blob := gocv.BlobFromImage(frame, 1.0/255.0, svc.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	svc.net.SetInput(blob, "")

	output := svc.net.Forward("")
	defer output.Close()

	rows, cols, err := outputShape(output.Size())
	if err != nil {
		return gocv.NewMat(), err
	}

	data, err := output.DataPtrFloat32()
	if err != nil || len(data) < rows*cols {
		return gocv.NewMat(), fmt.Errorf("%w: unreadable model output", ErrUnsupportedFrame)
	}

	small := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32FC1)
	defer small.Close()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			small.SetFloatAt(y, x, clamp01(data[y*cols+x]))
		}
	}

	mask := gocv.NewMat()
	if err := gocv.Resize(small, &mask, image.Pt(frame.Cols(), frame.Rows()), 0, 0, gocv.InterpolationLinear); err != nil {
		mask.Close()
		return gocv.NewMat(), xerrors.Errorf("error resizing mask: %w", err)
	}

	return mask, nil
}

func (svc *dnnService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.net.Close()
}

// outputShape accepts NCHW [1,1,H,W] and NHWC [1,H,W,1] single channel outputs.
func outputShape(dims []int) (int, int, error) {
	if len(dims) == 4 && dims[1] == 1 {
		return dims[2], dims[3], nil
	}

	if len(dims) == 4 && dims[3] == 1 {
		return dims[1], dims[2], nil
	}

	if len(dims) == 3 {
		return dims[1], dims[2], nil
	}

	return 0, 0, fmt.Errorf("%w: unexpected model output dims %v", ErrUnsupportedFrame, dims)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
