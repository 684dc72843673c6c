package mode

import (
	"context"

	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/display"
)

const recordingFPS = 30

// Record writes the composited feed to an MP4 file named after the session.
func Record(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	printBanner("record", svcs.CfgSvc)

	stats, err := runSession(canxCtx, svcs, "record", func(sessionID string) (display.IService, error) {
		return display.NewRecorder(svcs.CfgSvc.GetRecordingsFolder(), sessionID, recordingFPS), nil
	}, false)

	printSummary(stats)
	return err
}
