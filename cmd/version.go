package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var VersionNumber = "v0.1.0-alpha"

func getVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), VersionNumber)
			return err
		},
	}
}
