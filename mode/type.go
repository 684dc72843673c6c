package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/data"
	"github.com/khaledhikmat/vbg-go/service/lgr"
)

// Processor runs one mode until it finishes or canxCtx is cancelled.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.SessionStats:
		procSessionStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procSessionStats(datasvc data.IService, stats model.SessionStats) {
	err := datasvc.NewSessionStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store session stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
