package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath  string
	memoryRedis bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "accountd",
		Short: "accountd serves the self-service account console",
		Long: `accountd serves the account console where users review their profile,
change their password, enroll an authenticator and manage active sessions.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&flags.memoryRedis, "memory-redis", false, "Use an embedded in-memory Redis instead of the configured server")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newTokenCmd(flags))
	root.AddCommand(newLoadtestCmd(flags))
	return root
}
