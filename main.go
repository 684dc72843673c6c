package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vbg-go/mode"
	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/capture"
	"github.com/khaledhikmat/vbg-go/service/config"
	"github.com/khaledhikmat/vbg-go/service/data"
	"github.com/khaledhikmat/vbg-go/service/lgr"
	"github.com/khaledhikmat/vbg-go/service/segmentation"
	"github.com/khaledhikmat/vbg-go/service/stills"
)

var modeProcessors = map[string]mode.Processor{
	"live":    mode.Live,
	"preview": mode.Preview,
	"record":  mode.Record,
	"still":   mode.Still,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	lgr.Setup(os.Getenv("VBG_LOG_LEVEL"), os.Getenv("VBG_LOG_FILE"))

	modeType := "live"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		os.Exit(2)
	}

	// Configuration problems are reported before any frame is processed
	cfgSvc, err := config.NewEnv()
	if err == nil {
		err = config.Validate(cfgSvc)
	}
	if err != nil {
		lgr.Logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(2)
	}

	// Stills service
	stillsSvc := stills.NewFiles()
	if path := cfgSvc.GetBackgroundImagePath(); path != "" {
		if err := pipeline.CheckImage(stillsSvc, path); err != nil {
			lgr.Logger.Error("invalid configuration", slog.Any("error", err))
			os.Exit(2)
		}
	}

	// Data service
	dataSvc := data.NewFilesDB(cfgSvc)
	// Segmentation service
	segmentationSvc, err := segmentation.NewDNN(cfgSvc.GetModelPath())
	if err != nil {
		lgr.Logger.Error("error loading segmentation model", slog.Any("error", err))
		os.Exit(1)
	}
	defer segmentationSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:          cfgSvc,
		DataSvc:         dataSvc,
		CaptureSvc:      capture.NewCamera(),
		SegmentationSvc: segmentationSvc,
		StillsSvc:       stillsSvc,
	}

	waitOnShutdown := time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	exitCode := 0

	// Wait for cancellation or mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"vbg context cancelled",
		)

		// The loop stops at its next tick boundary and releases the device
		timer := time.NewTimer(waitOnShutdown)
		defer timer.Stop()

		select {
		case <-timer.C:
			lgr.Logger.Info(
				"vbg shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
		case err := <-modeProcResult:
			exitCode = exitCodeFor(modeType, err)
		}

	case err := <-modeProcResult:
		exitCode = exitCodeFor(modeType, err)
	}

	canxFn()
	if exitCode != 0 {
		segmentationSvc.Close()
		os.Exit(exitCode)
	}
}

func exitCodeFor(modeType string, err error) int {
	if err == nil {
		lgr.Logger.Info("vbg mode processor exited", slog.String("mode", modeType))
		return 0
	}

	lgr.Logger.Error(
		"vbg mode processor exited",
		slog.String("mode", modeType),
		slog.Any("error", err),
	)
	return 1
}
