package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/model"
)

type envService struct {
	shutdownTime     int
	renderMode       RenderMode
	threshold        float32
	blurKernel       int
	featherKernel    int
	solidColor       model.RGB
	gradientStops    []model.RGB
	imagePath        string
	mirror           bool
	device           int
	width            int
	height           int
	modelPath        string
	maxReadFailures  int
	inferenceTimeout time.Duration
	pipelined        bool
	windowName       string
	keyPollInterval  int
	previewAddr      string
	recordingsFolder string
	dataFolder       string
}

// NewEnv reads VBG_* environment variables on top of the hardcoded defaults.
// Malformed values are reported as config errors.
func NewEnv() (IService, error) {
	def := NewHardCoded()
	svc := &envService{
		imagePath:        getEnv("VBG_IMAGE_PATH", def.GetBackgroundImagePath()),
		modelPath:        getEnv("VBG_MODEL_PATH", def.GetModelPath()),
		windowName:       getEnv("VBG_WINDOW_NAME", def.GetWindowName()),
		previewAddr:      getEnv("VBG_PREVIEW_ADDR", def.GetPreviewAddr()),
		recordingsFolder: getEnv("VBG_RECORDINGS_FOLDER", def.GetRecordingsFolder()),
		dataFolder:       getEnv("VBG_DATA_FOLDER", def.GetDataFolder()),
	}

	var timeoutMs int
	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"VBG_MODE_MAX_SHUTDOWN_SECS", def.GetModeMaxShutdownTime(), &svc.shutdownTime},
		{"VBG_DEVICE", def.GetDevice(), &svc.device},
		{"VBG_WIDTH", def.GetFrameWidth(), &svc.width},
		{"VBG_HEIGHT", def.GetFrameHeight(), &svc.height},
		{"VBG_MAX_READ_FAILURES", def.GetMaxReadFailures(), &svc.maxReadFailures},
		{"VBG_INFERENCE_TIMEOUT_MS", int(def.GetInferenceTimeout() / time.Millisecond), &timeoutMs},
		{"VBG_KEY_POLL_MS", def.GetKeyPollInterval(), &svc.keyPollInterval},
		{"VBG_BLUR_KERNEL", def.GetBlurKernelSize(), &svc.blurKernel},
		{"VBG_FEATHER", def.GetFeatherKernelSize(), &svc.featherKernel},
	}
	for _, i := range ints {
		v, err := parseInt(i.key, i.fallback)
		if err != nil {
			return nil, err
		}
		*i.dst = v
	}
	svc.inferenceTimeout = time.Duration(timeoutMs) * time.Millisecond

	var err error
	svc.mirror, err = parseBool("VBG_MIRROR", def.GetMirror())
	if err != nil {
		return nil, err
	}

	svc.pipelined, err = parseBool("VBG_PIPELINED", def.GetPipelined())
	if err != nil {
		return nil, err
	}

	svc.threshold = def.GetThreshold()
	if v, ok := os.LookupEnv("VBG_THRESHOLD"); ok {
		f, perr := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if perr != nil {
			return nil, configError(perr, "VBG_THRESHOLD", v)
		}
		svc.threshold = float32(f)
	}

	svc.renderMode = def.GetRenderMode()
	if v, ok := os.LookupEnv("VBG_MODE"); ok {
		mode, found := ParseRenderMode(strings.ToLower(strings.TrimSpace(v)))
		if !found {
			return nil, configError(xerrors.Errorf("unknown mode %q", v), "VBG_MODE", v)
		}
		svc.renderMode = mode
	}

	svc.solidColor = def.GetSolidColor()
	if v, ok := os.LookupEnv("VBG_SOLID_COLOR"); ok {
		svc.solidColor, err = ParseColor(v)
		if err != nil {
			return nil, configError(err, "VBG_SOLID_COLOR", v)
		}
	}

	svc.gradientStops = def.GetGradientStops()
	if v, ok := os.LookupEnv("VBG_GRADIENT_STOPS"); ok {
		svc.gradientStops, err = ParseColorStops(v)
		if err != nil {
			return nil, configError(err, "VBG_GRADIENT_STOPS", v)
		}
	}

	return svc, nil
}

// ParseColor parses "r,g,b".
func ParseColor(s string) (model.RGB, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return model.RGB{}, xerrors.Errorf("color %q must have 3 components", s)
	}

	var channels [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return model.RGB{}, xerrors.Errorf("color %q: %w", s, err)
		}
		channels[i] = uint8(v)
	}

	return model.RGB{R: channels[0], G: channels[1], B: channels[2]}, nil
}

// ParseColorStops parses "r,g,b;r,g,b;...".
func ParseColorStops(s string) ([]model.RGB, error) {
	stops := []model.RGB{}
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseColor(part)
		if err != nil {
			return nil, err
		}
		stops = append(stops, c)
	}
	return stops, nil
}

func configError(err error, key, value string) error {
	return model.GenError(model.StageConfig, model.KindConfig,
		fmt.Errorf("%w: %w", ErrInvalidConfig, err),
		map[string]interface{}{"key": key, "value": value},
		"malformed %s", key)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}

	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, configError(fmt.Errorf("not an integer: %w", err), key, v)
	}
	return i, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, configError(fmt.Errorf("not a boolean: %w", err), key, v)
	}
	return b, nil
}

func (svc *envService) GetModeMaxShutdownTime() int        { return svc.shutdownTime }
func (svc *envService) GetRenderMode() RenderMode          { return svc.renderMode }
func (svc *envService) GetThreshold() float32              { return svc.threshold }
func (svc *envService) GetBlurKernelSize() int             { return svc.blurKernel }
func (svc *envService) GetFeatherKernelSize() int          { return svc.featherKernel }
func (svc *envService) GetSolidColor() model.RGB           { return svc.solidColor }
func (svc *envService) GetGradientStops() []model.RGB      { return svc.gradientStops }
func (svc *envService) GetBackgroundImagePath() string     { return svc.imagePath }
func (svc *envService) GetMirror() bool                    { return svc.mirror }
func (svc *envService) GetDevice() int                     { return svc.device }
func (svc *envService) GetFrameWidth() int                 { return svc.width }
func (svc *envService) GetFrameHeight() int                { return svc.height }
func (svc *envService) GetModelPath() string               { return svc.modelPath }
func (svc *envService) GetMaxReadFailures() int            { return svc.maxReadFailures }
func (svc *envService) GetInferenceTimeout() time.Duration { return svc.inferenceTimeout }
func (svc *envService) GetPipelined() bool                 { return svc.pipelined }
func (svc *envService) GetWindowName() string              { return svc.windowName }
func (svc *envService) GetKeyPollInterval() int            { return svc.keyPollInterval }
func (svc *envService) GetPreviewAddr() string             { return svc.previewAddr }
func (svc *envService) GetRecordingsFolder() string        { return svc.recordingsFolder }
func (svc *envService) GetDataFolder() string              { return svc.dataFolder }
