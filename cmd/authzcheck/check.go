package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

func newCheckCmd() *cobra.Command {
	var (
		rulesPath  string
		groupsPath string
		repo       string
		path       string
		user       string
		anonymous  bool
		rights     string
		recursive  bool
		mustExist  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Answer one access question against a rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			required, err := parseRights(rights)
			if err != nil {
				return err
			}

			loaded, err := retrieval.Load(afero.NewOsFs(), retrieval.Location(rulesPath), retrieval.Location(groupsPath), mustExist)
			if err != nil {
				return err
			}

			var userPtr *string
			if !anonymous {
				userPtr = &user
			}
			var pathPtr *string
			if path != "" {
				pathPtr = &path
			}

			granted, err := authz.CheckAccess(loaded, repo, pathPtr, userPtr, required, recursive)
			if err != nil {
				return err
			}

			printDecision(cmd.OutOrStdout(), granted)
			if !granted {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the rules file (required)")
	cmd.Flags().StringVar(&groupsPath, "groups", "", "path to a separate groups file, if any")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name (empty matches unscoped rules)")
	cmd.Flags().StringVar(&path, "path", "", "query path, must start with '/'; omit for \"any access anywhere\"")
	cmd.Flags().StringVar(&user, "user", "", "authenticated user name")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "query as the anonymous user")
	cmd.Flags().StringVar(&rights, "rights", "r", "rights to check for: r, w, or rw")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "require rights on every path beneath --path")
	cmd.Flags().BoolVar(&mustExist, "must-exist", true, "fail if the rules file does not exist, instead of treating it as empty")
	cmd.MarkFlagRequired("rules")

	return cmd
}

func parseRights(s string) (authz.Rights, error) {
	var r authz.Rights
	for _, c := range s {
		switch c {
		case 'r':
			r |= authz.Read
		case 'w':
			r |= authz.Write
		default:
			return 0, fmt.Errorf("invalid rights %q: use any combination of 'r' and 'w'", s)
		}
	}
	if r == 0 {
		return 0, fmt.Errorf("invalid rights %q: must name at least one of 'r' or 'w'", s)
	}
	return r, nil
}

func printDecision(w interface{ Write([]byte) (int, error) }, granted bool) {
	colorize := isatty.IsTerminal(os.Stdout.Fd())
	text := "DENIED"
	paint := color.New(color.FgRed, color.Bold)
	if granted {
		text = "GRANTED"
		paint = color.New(color.FgGreen, color.Bold)
	}
	if colorize {
		paint.Fprintln(w, text)
	} else {
		fmt.Fprintln(w, text)
	}
}
