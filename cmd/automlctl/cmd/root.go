package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/synaptica-ai/automl/pkg/common/config"
	"github.com/synaptica-ai/automl/pkg/common/logger"
)

// Defaults come from the same environment as the service.
var cfg = config.Load()

var automlctlDescription = `
automlctl runs the AutoML pipeline locally: load a CSV, train the selected
algorithms, print the evaluation, export the fitted pipeline, and score rows
against exported bundles. It can also tail the training events the service
publishes to Kafka.
`

var rootCmd = &cobra.Command{
	Use:               "automlctl <command> [flags]",
	Short:             "local client of the AutoML service.",
	Long:              automlctlDescription,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.Init()
	},
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(eventsCmd)
}
