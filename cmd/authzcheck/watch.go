package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rjeczalik/notify"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

func newWatchCmd() *cobra.Command {
	var (
		rulesPath  string
		groupsPath string
		mustExist  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload and revalidate the rules file on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			events := make(chan notify.EventInfo, 8)
			if err := notify.Watch(rulesPath, events, notify.Write, notify.Create, notify.Rename); err != nil {
				return fmt.Errorf("watching %q: %w", rulesPath, err)
			}
			defer notify.Stop(events)

			fs := afero.NewOsFs()
			reload := func() {
				_, err := retrieval.Load(fs, retrieval.Location(rulesPath), retrieval.Location(groupsPath), mustExist)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
					return
				}
				fmt.Fprintln(cmd.OutOrStdout(), "reload ok")
			}

			reload()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Event(), ev.Path())
					reload()
				}
			}
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the rules file to watch (required)")
	cmd.Flags().StringVar(&groupsPath, "groups", "", "path to a separate groups file, if any")
	cmd.Flags().BoolVar(&mustExist, "must-exist", true, "fail if the rules file does not exist, instead of treating it as empty")
	cmd.MarkFlagRequired("rules")

	return cmd
}
