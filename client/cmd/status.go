package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"gopkg.in/yaml.v3"
)

var (
	verbose    *bool
	fullConfig *bool
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "View status info including the ever id and the number of queued requests",
	GroupID: GROUP_ID_CONFIG,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(printStatus(ctx, tracker, os.Stdout, *verbose, *fullConfig))
	},
}

func printStatus(ctx context.Context, tracker *lib.Tracker, w io.Writer, verbose, fullConfig bool) error {
	config := tracker.Config()
	if fullConfig {
		y, err := yaml.Marshal(config)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(y))
		return nil
	}
	everId, err := tracker.GetEverId(ctx)
	if err != nil {
		return err
	}
	optedOut, err := tracker.HasOptOut(ctx)
	if err != nil {
		return err
	}
	pending, err := tracker.PendingCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "wtctl: v%s\n", lib.Version)
	fmt.Fprintf(w, "Ever ID: %s\n", everId)
	if optedOut {
		fmt.Fprintln(w, "Tracking: opted out")
	} else {
		fmt.Fprintln(w, "Tracking: enabled")
	}
	fmt.Fprintf(w, "Queued requests: %d\n", pending)
	if verbose {
		fmt.Fprintf(w, "Track domain: %s\n", config.TrackDomain)
		fmt.Fprintf(w, "Track ids: %s\n", strings.Join(config.TrackIds, ","))
		fmt.Fprintf(w, "Data directory: %s\n", data.GetWebtrekkPath())
		if lib.IsOfflineBinary() {
			fmt.Fprintln(w, "Delivery: disabled in this build, requests are only logged")
		}
	}
	fmt.Fprintf(w, "Commit Hash: %s\n", lib.GitCommit)
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	verbose = statusCmd.Flags().BoolP("verbose", "v", false, "Display verbose status info")
	fullConfig = statusCmd.Flags().Bool("full-config", false, "Display the full effective config")
}
