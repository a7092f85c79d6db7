package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/encode"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
)

var trackCmd = &cobra.Command{
	Use:     "track",
	Short:   "Queue a tracking request",
	GroupID: GROUP_ID_TRACKING,
}

var trackPageCmd = &cobra.Command{
	Use:   "page <name> [key=value ...]",
	Short: "Queue a page view",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(trackPage(ctx, tracker, args[0], args[1:]))
	},
}

var trackEventCmd = &cobra.Command{
	Use:   "event <name> [key=value ...]",
	Short: "Queue a custom event",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(trackEvent(ctx, tracker, args[0], args[1:]))
	},
}

var (
	mediaName       *string
	mediaAction     *string
	mediaPosition   *int64
	mediaDuration   *int64
	mediaBandwidth  *int64
	mediaMute       *bool
	mediaVolume     *int
	mediaCategories *[]string
)

var trackMediaCmd = &cobra.Command{
	Use:   "media <page> [key=value ...]",
	Short: "Queue a media player action",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		media, err := mediaParametersFromFlags(cmd)
		lib.CheckFatalError(err)
		ctx := tctx.MakeContext()
		tracker := openTracker(ctx)
		defer closeTracker(ctx, tracker)
		lib.CheckFatalError(trackMedia(ctx, tracker, args[0], media, args[1:]))
	},
}

func trackPage(ctx context.Context, tracker *lib.Tracker, name string, args []string) error {
	custom, err := lib.ParseCustomParams(args)
	if err != nil {
		return err
	}
	return tracker.Track(ctx, &encode.PageViewEvent{PageName: name}, custom)
}

func trackEvent(ctx context.Context, tracker *lib.Tracker, name string, args []string) error {
	custom, err := lib.ParseCustomParams(args)
	if err != nil {
		return err
	}
	return tracker.Track(ctx, &encode.CustomEvent{EventName: name}, custom)
}

func trackMedia(ctx context.Context, tracker *lib.Tracker, page string, media *encode.MediaParameters, args []string) error {
	custom, err := lib.ParseCustomParams(args)
	if err != nil {
		return err
	}
	return tracker.Track(ctx, &encode.MediaEvent{PageName: page, Media: media}, custom)
}

// mediaParametersFromFlags only sets the optional values whose flags were actually passed, so
// that an unset volume is left out of the request instead of being sent as 0.
func mediaParametersFromFlags(cmd *cobra.Command) (*encode.MediaParameters, error) {
	action, err := encode.ParseMediaAction(*mediaAction)
	if err != nil {
		return nil, err
	}
	media := &encode.MediaParameters{
		Name:     *mediaName,
		Action:   action,
		Position: *mediaPosition,
		Duration: *mediaDuration,
	}
	if cmd.Flags().Changed("bandwidth") {
		media.Bandwidth = mediaBandwidth
	}
	if cmd.Flags().Changed("mute") {
		media.Mute = mediaMute
	}
	if cmd.Flags().Changed("volume") {
		media.Volume = mediaVolume
	}
	categories, err := parseCategories(*mediaCategories)
	if err != nil {
		return nil, err
	}
	media.Categories = categories
	return media, nil
}

func parseCategories(args []string) (map[int]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	categories := make(map[int]string, len(args))
	for _, arg := range args {
		idx, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("category %q is not of the form N=value", arg)
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("category index %q must be a positive number", idx)
		}
		categories[n] = value
	}
	return categories, nil
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.AddCommand(trackPageCmd)
	trackCmd.AddCommand(trackEventCmd)
	trackCmd.AddCommand(trackMediaCmd)

	mediaName = trackMediaCmd.Flags().String("name", "", "Name of the media item")
	mediaAction = trackMediaCmd.Flags().String("action", string(encode.MediaPlay), "One of init, play, pause, stop, seek, pos, eof")
	mediaPosition = trackMediaCmd.Flags().Int64("position", 0, "Current playback position in seconds")
	mediaDuration = trackMediaCmd.Flags().Int64("duration", 0, "Total duration in seconds")
	mediaBandwidth = trackMediaCmd.Flags().Int64("bandwidth", 0, "Bandwidth in bits per second")
	mediaMute = trackMediaCmd.Flags().Bool("mute", false, "Whether the player is muted")
	mediaVolume = trackMediaCmd.Flags().Int("volume", 0, "Player volume from 0 to 255")
	mediaCategories = trackMediaCmd.Flags().StringArray("category", nil, "A media category as N=value, may be repeated")
	_ = trackMediaCmd.MarkFlagRequired("name")
}
