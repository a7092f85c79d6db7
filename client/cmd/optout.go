package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
)

var optOutSendCurrentData *bool

var optOutCmd = &cobra.Command{
	Use:     "optout",
	Short:   "Stop or resume tracking",
	GroupID: GROUP_ID_CONFIG,
}

var optOutEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Stop tracking, dropping or sending what is already queued",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(setOptOut(ctx, tracker, true, *optOutSendCurrentData))
		fmt.Println("Tracking is disabled")
	},
}

var optOutDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Resume tracking",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(setOptOut(ctx, tracker, false, false))
		fmt.Println("Tracking is enabled")
	},
}

func setOptOut(ctx context.Context, tracker *lib.Tracker, value, sendCurrentData bool) error {
	return tracker.OptOut(ctx, value, sendCurrentData)
}

func init() {
	rootCmd.AddCommand(optOutCmd)
	optOutCmd.AddCommand(optOutEnableCmd)
	optOutCmd.AddCommand(optOutDisableCmd)
	optOutSendCurrentData = optOutEnableCmd.Flags().Bool("send-current-data", false, "Deliver the queued requests before opting out instead of deleting them")
}
