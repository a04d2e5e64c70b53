package cmd

import (
	"github.com/keygate/passport/cmd/client/subcommands"

	"github.com/spf13/cobra"
)

func ClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Client utilities",
		Long:  `Utilities for registering relying-party clients.`,
	}
	clientCmd.AddCommand(subcommands.CreateCmd)
	return clientCmd
}
