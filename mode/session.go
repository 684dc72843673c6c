package mode

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/config"
	"github.com/khaledhikmat/vbg-go/service/display"
	"github.com/khaledhikmat/vbg-go/service/lgr"
)

type displayFactory func(sessionID string) (display.IService, error)

// runSession wires a frame loop to a display and runs it on the calling
// goroutine while errors and stats are persisted in the background.
func runSession(canxCtx context.Context, svcs pipeline.ServicesFactory, name string, newDisplay displayFactory, keys bool) (model.SessionStats, error) {
	cfgSvc := svcs.CfgSvc
	sessionID := uuid.NewString()

	backdrop, err := pipeline.BackdropFor(cfgSvc.GetRenderMode(), cfgSvc, svcs.StillsSvc)
	if err != nil {
		return model.SessionStats{}, err
	}

	displaySvc, err := newDisplay(sessionID)
	if err != nil {
		return model.SessionStats{}, err
	}
	defer displaySvc.Close()

	engine := pipeline.NewEngine(svcs.SegmentationSvc, backdrop, pipeline.EngineOptions{
		Threshold:        cfgSvc.GetThreshold(),
		FeatherKernel:    cfgSvc.GetFeatherKernelSize(),
		InferenceTimeout: cfgSvc.GetInferenceTimeout(),
	})
	defer engine.Close()

	// Create error and stats streams
	errorStream := make(chan interface{}, 16)
	statsStream := make(chan interface{}, 4)

	opts := pipeline.LoopOptions{
		Mode:            name,
		SessionID:       sessionID,
		Device:          cfgSvc.GetDevice(),
		Width:           cfgSvc.GetFrameWidth(),
		Height:          cfgSvc.GetFrameHeight(),
		Mirror:          cfgSvc.GetMirror(),
		MaxReadFailures: cfgSvc.GetMaxReadFailures(),
		Pipelined:       cfgSvc.GetPipelined(),
		WindowName:      cfgSvc.GetWindowName(),
		KeyPollInterval: cfgSvc.GetKeyPollInterval(),
	}
	if keys {
		opts.OnKey = backdropSwitcher(engine, svcs)
	}

	loop := pipeline.NewLoop(svcs.CaptureSvc, displaySvc, engine, errorStream, statsStream, opts)

	done := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case s := <-statsStream:
				procStats(svcs.DataSvc, s)
			case e := <-errorStream:
				procError(svcs.DataSvc, e)
			case <-done:
				// Whatever the loop reported before returning
				for {
					select {
					case s := <-statsStream:
						procStats(svcs.DataSvc, s)
					case e := <-errorStream:
						procError(svcs.DataSvc, e)
					default:
						return
					}
				}
			}
		}
	}()

	err = loop.Run(canxCtx)
	close(done)
	<-drained

	return loop.Stats(), err
}

// backdropSwitcher maps the number keys to render modes.
func backdropSwitcher(engine *pipeline.Engine, svcs pipeline.ServicesFactory) func(key int) {
	return func(key int) {
		mode := config.RenderMode(key - '0')
		if mode < config.ModeSolidColor || mode > config.ModeImage {
			return
		}

		backdrop, err := pipeline.BackdropFor(mode, svcs.CfgSvc, svcs.StillsSvc)
		if err == nil && mode == config.ModeImage {
			err = pipeline.CheckImage(svcs.StillsSvc, svcs.CfgSvc.GetBackgroundImagePath())
		}
		if err != nil {
			lgr.Logger.Warn(
				"background mode not available",
				slog.String("mode", mode.String()),
				slog.Any("error", err),
			)
			return
		}

		engine.SetBackdrop(backdrop)
	}
}
