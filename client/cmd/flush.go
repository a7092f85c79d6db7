package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/scheduler"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"golang.org/x/term"
)

var flushCmd = &cobra.Command{
	Use:     "flush",
	Short:   "Send every queued request now",
	GroupID: GROUP_ID_MANAGEMENT,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		sent, err := flush(ctx, tracker, term.IsTerminal(int(os.Stdout.Fd())))
		lib.CheckFatalError(err)
		fmt.Printf("Sent %d requests\n", sent)
	},
}

func flush(ctx context.Context, tracker *lib.Tracker, showProgress bool) (int, error) {
	var progress func(scheduler.CycleResult)
	if showProgress {
		pending, err := tracker.PendingCount(ctx)
		if err != nil {
			return 0, err
		}
		if pending == 0 {
			return 0, nil
		}
		bar := progressbar.Default(pending, "Sending")
		defer bar.Finish()
		progress = func(result scheduler.CycleResult) {
			_ = bar.Add(result.Sent)
		}
	}
	return tracker.Flush(ctx, progress)
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
