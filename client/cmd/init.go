package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
)

var (
	initTrackDomain *string
	initTrackIds    *[]string
	initConfigFile  *string
	initForce       *bool
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Write the tracking config and create the installation's ever id",
	GroupID: GROUP_ID_CONFIG,
	Run: func(cmd *cobra.Command, args []string) {
		var config tctx.Config
		if *initConfigFile != "" {
			loaded, err := tctx.LoadConfigFile(*initConfigFile)
			lib.CheckFatalError(err)
			config = loaded
		}
		if *initTrackDomain != "" {
			config.TrackDomain = *initTrackDomain
		}
		if len(*initTrackIds) > 0 {
			config.TrackIds = *initTrackIds
		}
		everId, err := setup(context.Background(), config, *initForce)
		lib.CheckFatalError(err)
		fmt.Printf("Tracking to %s as ever id %s\n", config.TrackDomain, everId)
	},
}

// setup validates and stores config, then opens the tracker once so that the ever id and the
// first session exist before the first event is tracked.
func setup(ctx context.Context, config tctx.Config, force bool) (string, error) {
	if _, err := tctx.GetConfigContents(); err == nil && !force {
		return "", fmt.Errorf("wtctl is already initialized, pass --force to overwrite the config")
	}
	config.FillDefaults()
	if err := config.Validate(); err != nil {
		return "", err
	}
	if err := tctx.SetConfig(&config); err != nil {
		return "", err
	}
	tracker, err := lib.Open(&config, lib.WithBackgroundJobs(false))
	if err != nil {
		return "", err
	}
	defer tracker.Close()
	if err := tracker.Init(ctx); err != nil {
		return "", err
	}
	return tracker.GetEverId(ctx)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initTrackDomain = initCmd.Flags().String("track-domain", os.Getenv("WEBTREKK_TRACK_DOMAIN"), "The collection endpoint, e.g. https://q3.webtrekk.net")
	initTrackIds = initCmd.Flags().StringSlice("track-ids", nil, "Comma separated account ids that requests are delivered to")
	initConfigFile = initCmd.Flags().String("config-file", "", "Read the config from a YAML or JSON file")
	initForce = initCmd.Flags().Bool("force", false, "Overwrite an existing config")
}
