package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
)

var (
	queueLimit *int
	queueUrls  *bool
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Short:   "List the queued requests, oldest first",
	GroupID: GROUP_ID_MANAGEMENT,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(displayQueue(ctx, tracker, os.Stdout, *queueLimit, *queueUrls))
	},
}

func displayQueue(ctx context.Context, tracker *lib.Tracker, w io.Writer, limit int, showUrls bool) error {
	tracks, err := tracker.Pending(ctx, limit)
	if err != nil {
		return err
	}
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columns := []interface{}{"Id", "Created", "Name", "Session", "Params"}
	if showUrls {
		columns = append(columns, "URL")
	}
	tbl := table.New(columns...)
	tbl.WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, track := range tracks {
		row := []interface{}{
			track.TrackRequest.Id,
			track.TrackRequest.Created().Format(time.DateTime),
			track.TrackRequest.Name,
			track.TrackRequest.Fns,
			len(track.CustomParams),
		}
		if showUrls {
			u, err := tracker.DeliveryURL(ctx, track)
			if err != nil {
				return err
			}
			row = append(row, u)
		}
		tbl.AddRow(row...)
	}
	tbl.Print()
	return nil
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueLimit = queueCmd.Flags().IntP("limit", "n", 25, "Maximum number of requests to list")
	queueUrls = queueCmd.Flags().Bool("urls", false, "Also show the URL each request is delivered to")
}
