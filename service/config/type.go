package config

import (
	"errors"
	"time"

	"github.com/khaledhikmat/vbg-go/model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// RenderMode selects the background strategy of a session.
type RenderMode int

const (
	ModeSolidColor RenderMode = iota + 1
	ModeGradient
	ModeBlur
	ModeDesaturate
	ModeImage
)

var renderModeNames = map[RenderMode]string{
	ModeSolidColor: "solid",
	ModeGradient:   "gradient",
	ModeBlur:       "blur",
	ModeDesaturate: "desaturate",
	ModeImage:      "image",
}

func (m RenderMode) String() string {
	if name, ok := renderModeNames[m]; ok {
		return name
	}
	return "unknown"
}

func ParseRenderMode(s string) (RenderMode, bool) {
	for mode, name := range renderModeNames {
		if name == s {
			return mode, true
		}
	}
	return 0, false
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetRenderMode() RenderMode
	GetThreshold() float32
	GetBlurKernelSize() int
	GetFeatherKernelSize() int
	GetSolidColor() model.RGB
	GetGradientStops() []model.RGB
	GetBackgroundImagePath() string
	GetMirror() bool
	GetDevice() int
	GetFrameWidth() int
	GetFrameHeight() int
	GetModelPath() string
	GetMaxReadFailures() int
	GetInferenceTimeout() time.Duration
	GetPipelined() bool
	GetWindowName() string
	GetKeyPollInterval() int
	GetPreviewAddr() string
	GetRecordingsFolder() string
	GetDataFolder() string
}
