package main

import (
	"runtime"

	"github.com/deploymenttheory/go-api-auth-client/version"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("apiclient version:", version.SDKVersion)
			cmd.Println("User-Agent:", version.GetUserAgentHeader())
			cmd.Println("Go version:", runtime.Version())
		},
	}
	return cmd
}
