package config

import (
	"time"

	"github.com/khaledhikmat/vbg-go/model"
)

type hardcodedService struct {
}

func NewHardCoded() IService {
	return &hardcodedService{}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return 5
}

func (svc *hardcodedService) GetRenderMode() RenderMode {
	return ModeGradient
}

func (svc *hardcodedService) GetThreshold() float32 {
	return 0.3
}

func (svc *hardcodedService) GetBlurKernelSize() int {
	return 95
}

func (svc *hardcodedService) GetFeatherKernelSize() int {
	// 0 keeps the exact per-pixel select
	return 0
}

func (svc *hardcodedService) GetSolidColor() model.RGB {
	return model.RGB{R: 192, G: 192, B: 192}
}

func (svc *hardcodedService) GetGradientStops() []model.RGB {
	return []model.RGB{
		{R: 240, G: 247, B: 212},
		{R: 178, G: 215, B: 50},
		{R: 102, G: 176, B: 50},
	}
}

func (svc *hardcodedService) GetBackgroundImagePath() string {
	return ""
}

func (svc *hardcodedService) GetMirror() bool {
	return true
}

func (svc *hardcodedService) GetDevice() int {
	return 0
}

func (svc *hardcodedService) GetFrameWidth() int {
	return 1280
}

func (svc *hardcodedService) GetFrameHeight() int {
	return 720
}

func (svc *hardcodedService) GetModelPath() string {
	return "./models/selfie_segmentation_landscape.onnx"
}

func (svc *hardcodedService) GetMaxReadFailures() int {
	return 30
}

func (svc *hardcodedService) GetInferenceTimeout() time.Duration {
	return 0
}

func (svc *hardcodedService) GetPipelined() bool {
	return false
}

func (svc *hardcodedService) GetWindowName() string {
	return "Virtual Background"
}

func (svc *hardcodedService) GetKeyPollInterval() int {
	return 5
}

func (svc *hardcodedService) GetPreviewAddr() string {
	return ":8088"
}

func (svc *hardcodedService) GetRecordingsFolder() string {
	return "./recordings"
}

func (svc *hardcodedService) GetDataFolder() string {
	return "./settings"
}
