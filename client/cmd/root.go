package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/webtrekk/webtrekk-go/client/lib"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var (
	GROUP_ID_TRACKING   string = "group_id_tracking"
	GROUP_ID_MANAGEMENT string = "group_id_management"
	GROUP_ID_CONFIG     string = "group_id_config"
)

var tracingStarted bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wtctl",
	Short: "wtctl: queue and deliver Webtrekk tracking requests",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config, err := tctx.GetConfig()
		if err == nil && config.EnableTracing {
			tracer.Start(tracer.WithService("wtctl"), tracer.WithServiceVersion(lib.Version))
			tracingStarted = true
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracingStarted {
			tracer.Stop()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// openTracker builds and initializes a tracker on the database and config stored in ctx. The
// stored session is resumed, so only tracking after the session timeout starts a new one. No
// background jobs are started, commands flush explicitly.
func openTracker(ctx context.Context) *lib.Tracker {
	tracker, err := newTracker(ctx)
	lib.CheckFatalError(err)
	return tracker
}

func newTracker(ctx context.Context) (*lib.Tracker, error) {
	tracker, err := lib.New(tctx.GetConf(ctx), tctx.GetDb(ctx), lib.WithLogger(tctx.GetLogger()), lib.WithBackgroundJobs(false), lib.WithResumeSessionOnInit(true))
	if err != nil {
		return nil, err
	}
	if err := tracker.Init(ctx); err != nil {
		tracker.Close()
		return nil, err
	}
	return tracker, nil
}

func closeTracker(ctx context.Context, tracker *lib.Tracker) {
	lib.CheckFatalError(tracker.Close())
	lib.CheckFatalError(tctx.CloseDb(tctx.GetDb(ctx)))
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_TRACKING, Title: "Tracking"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_MANAGEMENT, Title: "Queue Management"})
	rootCmd.AddGroup(&cobra.Group{ID: GROUP_ID_CONFIG, Title: "Configuration"})
	rootCmd.Version = lib.Version
}
