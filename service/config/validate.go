package config

import (
	"fmt"
	"os"

	"github.com/khaledhikmat/vbg-go/model"
)

// Validate checks the configuration surface before any frame is processed.
func Validate(svc IService) error {
	invalid := func(key string, value interface{}, messagef string, args ...interface{}) error {
		return model.GenError(model.StageConfig, model.KindConfig,
			fmt.Errorf("%w: "+messagef, append([]interface{}{ErrInvalidConfig}, args...)...),
			map[string]interface{}{"key": key, "value": value},
			"invalid %s", key)
	}

	if _, ok := renderModeNames[svc.GetRenderMode()]; !ok {
		return invalid("mode", int(svc.GetRenderMode()), "unknown render mode")
	}

	if t := svc.GetThreshold(); !(t > 0 && t < 1) {
		return invalid("threshold", t, "threshold %v is outside (0,1)", t)
	}

	if k := svc.GetBlurKernelSize(); k < 1 || k%2 == 0 {
		return invalid("blurKernelSize", k, "kernel size %d must be odd and positive", k)
	}

	if k := svc.GetFeatherKernelSize(); k != 0 && (k < 1 || k%2 == 0) {
		return invalid("featherKernelSize", k, "feather kernel size %d must be 0 or odd and positive", k)
	}

	if n := len(svc.GetGradientStops()); n < 2 {
		return invalid("gradientStops", n, "at least 2 gradient stops are required, got %d", n)
	}

	if svc.GetRenderMode() == ModeImage && svc.GetBackgroundImagePath() == "" {
		return invalid("backgroundImagePath", "", "image mode requires a background image path")
	}

	// The image mode can be selected at runtime, so a configured path is
	// checked whatever the startup mode
	if path := svc.GetBackgroundImagePath(); path != "" {
		if _, err := os.Stat(path); err != nil {
			return invalid("backgroundImagePath", path, "background image is not readable: %v", err)
		}
	}

	if svc.GetFrameWidth() <= 0 || svc.GetFrameHeight() <= 0 {
		return invalid("frameSize", []int{svc.GetFrameWidth(), svc.GetFrameHeight()}, "frame size must be positive")
	}

	if svc.GetMaxReadFailures() < 1 {
		return invalid("maxReadFailures", svc.GetMaxReadFailures(), "at least one read failure must be tolerated")
	}

	return nil
}
