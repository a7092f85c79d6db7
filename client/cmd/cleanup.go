package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
)

var cleanupBefore *string

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Short:   "Delete queued requests older than the retention window",
	GroupID: GROUP_ID_MANAGEMENT,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		deleted, err := cleanup(ctx, tracker, *cleanupBefore)
		lib.CheckFatalError(err)
		fmt.Printf("Deleted %d requests\n", deleted)
	},
}

func cleanup(ctx context.Context, tracker *lib.Tracker, before string) (int64, error) {
	var cutoff time.Time
	if before != "" {
		t, err := lib.ParseTimeGenerously(before)
		if err != nil {
			return 0, fmt.Errorf("failed to parse --before=%q: %w", before, err)
		}
		cutoff = t
	}
	return tracker.CleanUp(ctx, cutoff)
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupBefore = cleanupCmd.Flags().String("before", "", "Delete requests created before this date instead of using the retention window")
}
