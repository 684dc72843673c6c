package mode

import (
	"context"

	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/display"
)

// Preview streams the composited feed to browsers over a websocket. Keys
// pressed in the page switch the background like in live mode.
func Preview(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	printBanner("preview", svcs.CfgSvc)

	stats, err := runSession(canxCtx, svcs, "preview", func(_ string) (display.IService, error) {
		return display.NewPreview(svcs.CfgSvc.GetPreviewAddr())
	}, true)

	printSummary(stats)
	return err
}
