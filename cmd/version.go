package cmd

import (
	"fmt"

	"github.com/keygate/passport/internal/config"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("passport %s (commit %s, built %s)\n", config.Version, config.CommitHash, config.BuildTimestamp)
	},
}
