package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

// batchQuery is one entry of a batch scenario file.
type batchQuery struct {
	Repo      string `yaml:"repo"`
	Path      string `yaml:"path"`
	User      string `yaml:"user"`
	Anonymous bool   `yaml:"anonymous"`
	Rights    string `yaml:"rights"`
	Recursive bool   `yaml:"recursive"`
}

type batchFile struct {
	Queries []batchQuery `yaml:"queries"`
}

func newBatchCmd() *cobra.Command {
	var (
		rulesPath    string
		groupsPath   string
		scenarioPath string
		mustExist    bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every query in a YAML scenario file and print a results table",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(scenarioPath)
			if err != nil {
				return fmt.Errorf("reading scenario file: %w", err)
			}

			var scenario batchFile
			if err := yaml.Unmarshal(data, &scenario); err != nil {
				return fmt.Errorf("parsing scenario file: %w", err)
			}

			loaded, err := retrieval.Load(afero.NewOsFs(), retrieval.Location(rulesPath), retrieval.Location(groupsPath), mustExist)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"repo", "user", "path", "rights", "recursive", "result"})

			failures := 0
			for _, q := range scenario.Queries {
				required, err := parseRights(q.Rights)
				if err != nil {
					return fmt.Errorf("query %+v: %w", q, err)
				}

				var userPtr *string
				if !q.Anonymous {
					user := q.User
					userPtr = &user
				}
				var pathPtr *string
				if q.Path != "" {
					path := q.Path
					pathPtr = &path
				}

				granted, err := authz.CheckAccess(loaded, q.Repo, pathPtr, userPtr, required, q.Recursive)
				if err != nil {
					return fmt.Errorf("query %+v: %w", q, err)
				}
				result := "DENIED"
				if granted {
					result = "GRANTED"
				} else {
					failures++
				}

				table.Append([]string{
					orDash(q.Repo), displayUser(q), orDash(q.Path), q.Rights, fmt.Sprint(q.Recursive), result,
				})
			}
			table.Render()

			failOnDeny, _ := cmd.Flags().GetBool("fail-on-deny")
			if failures > 0 && failOnDeny {
				return fmt.Errorf("%d of %d queries were denied", failures, len(scenario.Queries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the rules file (required)")
	cmd.Flags().StringVar(&groupsPath, "groups", "", "path to a separate groups file, if any")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a YAML scenario file (required)")
	cmd.Flags().BoolVar(&mustExist, "must-exist", true, "fail if the rules file does not exist, instead of treating it as empty")
	cmd.Flags().Bool("fail-on-deny", false, "exit non-zero if any query is denied")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("scenario")

	return cmd
}

func displayUser(q batchQuery) string {
	if q.Anonymous {
		return "$anonymous"
	}
	return orDash(q.User)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
