// Command gradectl computes GPA, ranking, distribution and trend analytics
// over the score database and prints the results as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&globalOpts{open: openApp})
}

func newRootCmdWith(g *globalOpts) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gradectl",
		Short: "Grade analytics engine",
		Long: `gradectl reads published, approved score records and computes GPAs,
cohort rankings, score distributions and longitudinal trends. Results are
cached in process and, when configured, in Redis.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override observability.log_level")
	rootCmd.PersistentFlags().BoolVar(&g.pretty, "pretty", false, "Indent JSON output")

	rootCmd.AddCommand(
		newGPACmd(g),
		newRankCmd(g),
		newTrendCmd(g),
		newCohortTrendCmd(g),
		newCourseTrendCmd(g),
		newDistributionCmd(g),
		newCompareCmd(g),
		newPredictCmd(g),
		newWarmCmd(g),
		newInvalidateCmd(g),
		newServeCmd(g),
		newConfigCmd(g),
	)
	return rootCmd
}
