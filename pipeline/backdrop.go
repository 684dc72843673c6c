package pipeline

import (
	"fmt"
	"image"
	"math"
	"strings"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/config"
	"github.com/khaledhikmat/vbg-go/service/stills"
)

// BackdropContext is what a strategy may read to produce a background.
type BackdropContext struct {
	Frame  gocv.Mat
	Width  int
	Height int
}

// Backdrop is a background synthesis strategy.
type Backdrop interface {
	Name() string
	// Cacheable strategies do not depend on the frame content and are
	// produced once per Key and size.
	Cacheable() bool
	Key() string
	// Produce returns a CV8UC3 background of Width x Height owned by the caller.
	Produce(bctx BackdropContext) (gocv.Mat, error)
}

type SolidColorBackdrop struct {
	Color model.RGB
}

func (b SolidColorBackdrop) Name() string    { return config.ModeSolidColor.String() }
func (b SolidColorBackdrop) Cacheable() bool { return true }
func (b SolidColorBackdrop) Key() string     { return "solid:" + b.Color.String() }

func (b SolidColorBackdrop) Produce(bctx BackdropContext) (gocv.Mat, error) {
	return SolidColor(bctx.Width, bctx.Height, b.Color)
}

type GradientBackdrop struct {
	Stops []model.RGB
}

func (b GradientBackdrop) Name() string    { return config.ModeGradient.String() }
func (b GradientBackdrop) Cacheable() bool { return true }

func (b GradientBackdrop) Key() string {
	stops := make([]string, len(b.Stops))
	for i, s := range b.Stops {
		stops[i] = s.String()
	}
	return "gradient:" + strings.Join(stops, ";")
}

func (b GradientBackdrop) Produce(bctx BackdropContext) (gocv.Mat, error) {
	return VerticalGradient(bctx.Width, bctx.Height, b.Stops)
}

type BlurBackdrop struct {
	KernelSize int
}

func (b BlurBackdrop) Name() string    { return config.ModeBlur.String() }
func (b BlurBackdrop) Cacheable() bool { return false }
func (b BlurBackdrop) Key() string     { return fmt.Sprintf("blur:%d", b.KernelSize) }

func (b BlurBackdrop) Produce(bctx BackdropContext) (gocv.Mat, error) {
	return BlurOf(bctx.Frame, b.KernelSize)
}

type DesaturateBackdrop struct{}

func (b DesaturateBackdrop) Name() string    { return config.ModeDesaturate.String() }
func (b DesaturateBackdrop) Cacheable() bool { return false }
func (b DesaturateBackdrop) Key() string     { return "desaturate" }

func (b DesaturateBackdrop) Produce(bctx BackdropContext) (gocv.Mat, error) {
	return DesaturateOf(bctx.Frame)
}

type ImageBackdrop struct {
	Path   string
	Loader stills.IService
}

func (b ImageBackdrop) Name() string    { return config.ModeImage.String() }
func (b ImageBackdrop) Cacheable() bool { return true }
func (b ImageBackdrop) Key() string     { return "image:" + b.Path }

func (b ImageBackdrop) Produce(bctx BackdropContext) (gocv.Mat, error) {
	return FromImage(b.Loader, b.Path, bctx.Width, bctx.Height)
}

// BackdropFor builds the strategy of a render mode from the configuration.
func BackdropFor(mode config.RenderMode, cfgSvc config.IService, loader stills.IService) (Backdrop, error) {
	switch mode {
	case config.ModeSolidColor:
		return SolidColorBackdrop{Color: cfgSvc.GetSolidColor()}, nil
	case config.ModeGradient:
		return GradientBackdrop{Stops: cfgSvc.GetGradientStops()}, nil
	case config.ModeBlur:
		return BlurBackdrop{KernelSize: cfgSvc.GetBlurKernelSize()}, nil
	case config.ModeDesaturate:
		return DesaturateBackdrop{}, nil
	case config.ModeImage:
		if cfgSvc.GetBackgroundImagePath() == "" {
			return nil, model.GenError(model.StageConfig, model.KindConfig, config.ErrInvalidConfig,
				map[string]interface{}{"mode": mode.String()},
				"image mode requires a background image path")
		}
		return ImageBackdrop{Path: cfgSvc.GetBackgroundImagePath(), Loader: loader}, nil
	}

	return nil, model.GenError(model.StageConfig, model.KindConfig, config.ErrInvalidConfig,
		map[string]interface{}{"mode": int(mode)},
		"unknown render mode")
}

// SolidColor returns a width x height background filled with color.
func SolidColor(width, height int, color model.RGB) (gocv.Mat, error) {
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), synthesizeError(ErrShapeMismatch, width, height, "invalid background size")
	}
	return gocv.NewMatWithSizeFromScalar(scalarOf(color), height, width, gocv.MatTypeCV8UC3), nil
}

// VerticalGradient interpolates linearly between consecutive stops from the
// top row to the bottom row.
func VerticalGradient(width, height int, stops []model.RGB) (gocv.Mat, error) {
	if len(stops) < 2 {
		return gocv.NewMat(), synthesizeError(ErrInvalidStops, width, height, "got %d stops", len(stops))
	}

	if width <= 0 || height <= 0 {
		return gocv.NewMat(), synthesizeError(ErrShapeMismatch, width, height, "invalid background size")
	}

	segments := len(stops) - 1
	buf := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		fraction := float64(y) / float64(height)
		index := int(math.Floor(fraction * float64(segments)))
		if index > segments-1 {
			index = segments - 1
		}
		local := fraction*float64(segments) - float64(index)

		from, to := stops[index], stops[index+1]
		// BGR
		px := [3]byte{
			lerp(from.B, to.B, local),
			lerp(from.G, to.G, local),
			lerp(from.R, to.R, local),
		}

		row := buf[y*width*3 : (y+1)*width*3]
		for x := 0; x < width; x++ {
			copy(row[x*3:x*3+3], px[:])
		}
	}

	return matFromBGR(height, width, buf)
}

func lerp(a, b uint8, t float64) uint8 {
	v := math.Round((1-t)*float64(a) + t*float64(b))
	return uint8(math.Max(0, math.Min(255, v)))
}

// BlurOf returns a Gaussian-blurred copy of frame. kernelSize must be odd and
// at least 1.
func BlurOf(frame gocv.Mat, kernelSize int) (gocv.Mat, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return gocv.NewMat(), model.GenError(model.StageSynthesize, model.KindConfig, ErrInvalidKernel,
			map[string]interface{}{"kernelSize": kernelSize},
			"invalid blur kernel size %d", kernelSize)
	}

	if frame.Empty() {
		return gocv.NewMat(), synthesizeError(ErrShapeMismatch, 0, 0, "cannot blur an empty frame")
	}

	blurred := gocv.NewMat()
	if err := gocv.GaussianBlur(frame, &blurred, image.Pt(kernelSize, kernelSize), 0, 0, gocv.BorderDefault); err != nil {
		blurred.Close()
		return gocv.NewMat(), synthesizeError(err, frame.Cols(), frame.Rows(), "error blurring frame")
	}
	return blurred, nil
}

// DesaturateOf converts frame to luminance and broadcasts it back to 3 channels.
func DesaturateOf(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), synthesizeError(ErrShapeMismatch, 0, 0, "cannot desaturate an empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray); err != nil {
		return gocv.NewMat(), synthesizeError(err, frame.Cols(), frame.Rows(), "error converting frame to gray")
	}

	out := gocv.NewMat()
	if err := gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR); err != nil {
		out.Close()
		return gocv.NewMat(), synthesizeError(err, frame.Cols(), frame.Rows(), "error broadcasting gray to BGR")
	}
	return out, nil
}

// FromImage loads a still image and resizes it bilinearly to width x height.
// A missing or corrupt image is a fatal configuration error.
func FromImage(loader stills.IService, path string, width, height int) (gocv.Mat, error) {
	img, err := loader.Load(path)
	if err != nil {
		return gocv.NewMat(), model.GenError(model.StageSynthesize, model.KindConfig, err,
			map[string]interface{}{"path": path},
			"error loading background image")
	}
	defer img.Close()

	resized, err := loader.Resize(img, width, height)
	if err != nil {
		return gocv.NewMat(), model.GenError(model.StageSynthesize, model.KindConfig, err,
			map[string]interface{}{"path": path, "width": width, "height": height},
			"error resizing background image")
	}
	return resized, nil
}

// CheckImage loads the still at path once and discards it. It reports an
// unreadable or undecodable image as a config error.
func CheckImage(loader stills.IService, path string) error {
	img, err := loader.Load(path)
	if err != nil {
		return model.GenError(model.StageConfig, model.KindConfig, err,
			map[string]interface{}{"path": path},
			"background image is not usable")
	}
	img.Close()
	return nil
}

func synthesizeError(err error, width, height int, messagef string, args ...interface{}) error {
	return model.GenError(model.StageSynthesize, model.KindFatal, err,
		map[string]interface{}{"width": width, "height": height},
		messagef, args...)
}
