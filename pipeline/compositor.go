package pipeline

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
)

// Composite selects frame pixels where mask is foreground and background
// pixels elsewhere. It is an exact per-pixel select: mask edges are hard.
func Composite(frame, mask, background gocv.Mat) (gocv.Mat, error) {
	if err := checkShapes(frame, mask, background); err != nil {
		return gocv.NewMat(), err
	}

	out := background.Clone()
	if err := frame.CopyToWithMask(&out, mask); err != nil {
		out.Close()
		return gocv.NewMat(), compositeError(err, frame, mask, background, "error selecting foreground pixels")
	}
	return out, nil
}

// Blend feathers the mask edges with a Gaussian of kernelSize and mixes frame
// and background with the resulting alpha. kernelSize 1 behaves like Composite.
func Blend(frame, mask, background gocv.Mat, kernelSize int) (gocv.Mat, error) {
	if err := checkShapes(frame, mask, background); err != nil {
		return gocv.NewMat(), err
	}

	if kernelSize < 1 || kernelSize%2 == 0 {
		return gocv.NewMat(), model.GenError(model.StageComposite, model.KindConfig, ErrInvalidKernel,
			map[string]interface{}{"kernelSize": kernelSize},
			"invalid feather kernel size %d", kernelSize)
	}

	if kernelSize == 1 {
		return Composite(frame, mask, background)
	}

	alpha := gocv.NewMat()
	defer alpha.Close()
	soft := gocv.NewMat()
	defer soft.Close()
	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer ones.Close()
	inverse := gocv.NewMat()
	defer inverse.Close()
	fg := gocv.NewMat()
	defer fg.Close()
	bg := gocv.NewMat()
	defer bg.Close()
	sum := gocv.NewMat()
	defer sum.Close()

	// out = frame * alpha + background * (1 - alpha)
	steps := []struct {
		name string
		run  func() error
	}{
		{"scaling mask", func() error { return mask.ConvertToWithParams(&alpha, gocv.MatTypeCV32FC1, 1.0/MaskForeground, 0) }},
		{"feathering mask", func() error {
			return gocv.GaussianBlur(alpha, &soft, image.Pt(kernelSize, kernelSize), 0, 0, gocv.BorderDefault)
		}},
		{"expanding alpha", func() error { return gocv.Merge([]gocv.Mat{soft, soft, soft}, &alpha3) }},
		{"inverting alpha", func() error { return gocv.Subtract(ones, alpha3, &inverse) }},
		{"converting frame", func() error { return frame.ConvertTo(&fg, gocv.MatTypeCV32FC3) }},
		{"weighting frame", func() error { return gocv.Multiply(fg, alpha3, &fg) }},
		{"converting background", func() error { return background.ConvertTo(&bg, gocv.MatTypeCV32FC3) }},
		{"weighting background", func() error { return gocv.Multiply(bg, inverse, &bg) }},
		{"adding layers", func() error { return gocv.Add(fg, bg, &sum) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return gocv.NewMat(), compositeError(err, frame, mask, background, "error "+step.name)
		}
	}

	out := gocv.NewMat()
	if err := sum.ConvertTo(&out, gocv.MatTypeCV8UC3); err != nil {
		out.Close()
		return gocv.NewMat(), compositeError(err, frame, mask, background, "error converting blend")
	}
	return out, nil
}

func checkShapes(frame, mask, background gocv.Mat) error {
	if frame.Empty() || mask.Empty() || background.Empty() ||
		frame.Rows() != mask.Rows() || frame.Cols() != mask.Cols() ||
		frame.Rows() != background.Rows() || frame.Cols() != background.Cols() ||
		frame.Type() != background.Type() || mask.Type() != gocv.MatTypeCV8UC1 {
		return compositeError(ErrShapeMismatch, frame, mask, background, "composite inputs must share width and height")
	}
	return nil
}

func compositeError(err error, frame, mask, background gocv.Mat, message string) error {
	return model.GenError(model.StageComposite, model.KindFatal, err,
		map[string]interface{}{
			"frame":      shapeOf(frame),
			"mask":       shapeOf(mask),
			"background": shapeOf(background),
		},
		"%s", message)
}
