package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

func newValidateCmd() *cobra.Command {
	var (
		rulesPath  string
		groupsPath string
		mustExist  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a rules file for structural errors without running any query",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := retrieval.Load(afero.NewOsFs(), retrieval.Location(rulesPath), retrieval.Location(groupsPath), mustExist)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the rules file (required)")
	cmd.Flags().StringVar(&groupsPath, "groups", "", "path to a separate groups file, if any")
	cmd.Flags().BoolVar(&mustExist, "must-exist", true, "fail if the rules file does not exist, instead of treating it as empty")
	cmd.MarkFlagRequired("rules")

	return cmd
}
