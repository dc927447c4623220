package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danmuck/telectl/internal/logging"
	"github.com/danmuck/telectl/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "telectl",
	Short: "Encode, route and archive board telemetry.",
	Long: `telectl runs telemetry nodes: a board logs measurements to its local ` +
		`endpoints and transmits them once over the radio link, a ground ` +
		`station receives, validates and archives them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
		observability.InitLogger("telectl")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "telectl: %v\n", err)
		os.Exit(1)
	}
}
