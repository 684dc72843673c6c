package mode

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/lgr"
)

// Still composites a single image file. It expects the input and output
// paths and also writes the binary mask next to the output.
func Still(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) < 2 {
		return xerrors.New("still mode expects <input> <output>")
	}
	input, output := args[0], args[1]
	cfgSvc := svcs.CfgSvc

	backdrop, err := pipeline.BackdropFor(cfgSvc.GetRenderMode(), cfgSvc, svcs.StillsSvc)
	if err != nil {
		return err
	}

	frame, err := svcs.StillsSvc.Load(input)
	if err != nil {
		return err
	}
	defer frame.Close()

	engine := pipeline.NewEngine(svcs.SegmentationSvc, backdrop, pipeline.EngineOptions{
		Threshold:        cfgSvc.GetThreshold(),
		FeatherKernel:    cfgSvc.GetFeatherKernelSize(),
		InferenceTimeout: cfgSvc.GetInferenceTimeout(),
	})
	defer engine.Close()

	result, err := engine.Render(canxCtx, frame)
	if err != nil {
		procError(svcs.DataSvc, err)
		return err
	}
	defer result.Close()

	if err := svcs.StillsSvc.Save(output, result.Output); err != nil {
		return err
	}

	maskImg, err := pipeline.MaskImage(result.Mask)
	if err != nil {
		return err
	}
	defer maskImg.Close()

	maskPath := maskPathFor(output)
	if err := svcs.StillsSvc.Save(maskPath, maskImg); err != nil {
		return err
	}

	lgr.Logger.Info(
		"still composited",
		slog.String("input", input),
		slog.String("output", output),
		slog.String("mask", maskPath),
		slog.String("background", backdrop.Name()),
	)
	return nil
}

// maskPathFor turns out/photo.jpg into out/photo_mask.png.
func maskPathFor(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_mask.png"
}
