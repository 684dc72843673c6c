package mode

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/pipeline"
	"github.com/khaledhikmat/vbg-go/service/config"
	"github.com/khaledhikmat/vbg-go/service/display"
)

// Live shows the composited camera feed in a local window. Number keys
// switch the background, q or Esc quits.
func Live(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	printBanner("live", svcs.CfgSvc)

	stats, err := runSession(canxCtx, svcs, "live", func(_ string) (display.IService, error) {
		return display.NewWindow(svcs.CfgSvc.GetWindowName()), nil
	}, true)

	printSummary(stats)
	return err
}

func printBanner(name string, cfgSvc config.IService) {
	title := color.New(color.FgCyan, color.Bold)
	title.Printf("virtual background [%s]\n", name)
	fmt.Printf("  background: %s\n", cfgSvc.GetRenderMode())
	fmt.Printf("  device:     %d (%dx%d)\n", cfgSvc.GetDevice(), cfgSvc.GetFrameWidth(), cfgSvc.GetFrameHeight())
	fmt.Printf("  threshold:  %.2f\n", cfgSvc.GetThreshold())

	hint := color.New(color.FgHiBlack)
	hint.Printf("  keys: 1 solid, 2 gradient, 3 blur, 4 desaturate, 5 image, q quit\n")
}

func printSummary(stats model.SessionStats) {
	if stats.SessionID == "" {
		return
	}

	summary := color.New(color.FgGreen)
	if stats.Skipped > 0 {
		summary = color.New(color.FgYellow)
	}
	summary.Printf("session %s: %d composites, %d skipped, %d fps\n",
		stats.SessionID, stats.Composites, stats.Skipped, stats.FPS)
}
