package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version     = "dev"
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:           "authzcheck",
	Short:         "Inspect and serve path-based authorization rules",
	SilenceUsage:  false,
	SilenceErrors: true,
	Long: `authzcheck loads a path-based authorization rules file and
answers questions about it: whether a user has access to a path,
whether the file is well-formed, what the compiled decision tree looks
like, and how decisions change as the file is edited.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version)
			return nil
		}
		return cmd.Help()
	},
}

func main() {
	rootCmd.AddCommand(
		newCheckCmd(),
		newValidateCmd(),
		newTreeCmd(),
		newWatchCmd(),
		newBatchCmd(),
		newServeCmd(),
	)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show version information")

	cobra.CheckErr(rootCmd.Execute())
}
