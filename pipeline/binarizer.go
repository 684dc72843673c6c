package pipeline

import (
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/lgr"
)

// Foreground and background values of a binary mask
const (
	MaskForeground = 255
	MaskBackground = 0
)

// MaskBinarizer turns probability masks into binary masks with a fixed threshold.
type MaskBinarizer struct {
	threshold float32
}

// NewMaskBinarizer accepts any threshold. One outside (0,1) makes every mask
// degenerate (all foreground or all background) and is reported as a warning.
func NewMaskBinarizer(threshold float32) *MaskBinarizer {
	if !(threshold > 0 && threshold < 1) {
		lgr.Logger.Warn(
			"mask threshold is outside (0,1), masks will be degenerate",
			slog.Float64("threshold", float64(threshold)),
		)
	}

	return &MaskBinarizer{
		threshold: threshold,
	}
}

func (b *MaskBinarizer) Threshold() float32 {
	return b.threshold
}

func (b *MaskBinarizer) Binarize(mask gocv.Mat) (gocv.Mat, error) {
	return Binarize(mask, b.threshold)
}

// Binarize returns a CV8UC1 mask holding MaskForeground where the CV32FC1
// probability is strictly greater than threshold and MaskBackground elsewhere.
// No smoothing is applied.
func Binarize(mask gocv.Mat, threshold float32) (gocv.Mat, error) {
	if mask.Empty() || mask.Type() != gocv.MatTypeCV32FC1 {
		return gocv.NewMat(), model.GenError(model.StageBinarize, model.KindFatal, ErrInvalidMask,
			map[string]interface{}{"shape": shapeOf(mask), "type": int(mask.Type())},
			"probability mask must be a non-empty single channel float mask")
	}

	// THRESH_BINARY is dst = src > thresh ? maxval : 0
	hot := gocv.NewMat()
	defer hot.Close()
	gocv.Threshold(mask, &hot, threshold, MaskForeground, gocv.ThresholdBinary)

	binary := gocv.NewMat()
	if err := hot.ConvertTo(&binary, gocv.MatTypeCV8UC1); err != nil {
		binary.Close()
		return gocv.NewMat(), model.GenError(model.StageBinarize, model.KindFatal, err,
			map[string]interface{}{"shape": shapeOf(mask)},
			"error converting binary mask")
	}
	return binary, nil
}

// MaskImage renders a binary mask as a 3 channel black and white image.
func MaskImage(binary gocv.Mat) (gocv.Mat, error) {
	if binary.Empty() || binary.Type() != gocv.MatTypeCV8UC1 {
		return gocv.NewMat(), model.GenError(model.StageBinarize, model.KindFatal, ErrInvalidMask,
			map[string]interface{}{"shape": shapeOf(binary)},
			"binary mask must be a non-empty single channel mask")
	}

	img := gocv.NewMat()
	if err := gocv.CvtColor(binary, &img, gocv.ColorGrayToBGR); err != nil {
		img.Close()
		return gocv.NewMat(), err
	}
	return img, nil
}
