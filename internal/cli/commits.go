package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/domain"
)

func newCommitsCmd(opts *options) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "commits [project-id]",
		Short: "Show the summarised commit log of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				w := cmd.OutOrStdout()
				if refresh {
					added, err := a.Projects.RefreshCommits(ctx, opts.user(), args[0])
					if err != nil {
						return err
					}
					successColor.Fprintf(w, "%d new commit(s)\n", len(added))
				}

				commits, err := a.Projects.Commits(ctx, opts.user(), args[0])
				if err != nil {
					return err
				}
				for _, c := range commits {
					printCommit(cmd, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Poll the repository for new commits first")
	return cmd
}

func printCommit(cmd *cobra.Command, c domain.Commit) {
	w := cmd.OutOrStdout()
	hash := c.Hash
	if len(hash) > 7 {
		hash = hash[:7]
	}
	subject, _, _ := strings.Cut(c.Message, "\n")
	titleColor.Fprintf(w, "%s ", hash)
	fmt.Fprintln(w, subject)
	dimColor.Fprintf(w, "  %s, %s\n", c.AuthorName, c.Date.Format("2006-01-02 15:04"))
	if c.Summary != "" {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimSpace(c.Summary), "\n", "\n  "))
	}
}

func newPollCmd(opts *options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "poll [project-id]",
		Short: "Fetch and summarise new commits",
		Long: `Poll one project for commits that are not stored yet, or every active
project with --all. Only the most recent commits are considered.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				w := cmd.OutOrStdout()
				if all {
					n := a.Poller.PollAll(ctx)
					successColor.Fprintf(w, "%d new commit(s) across all projects\n", n)
					return nil
				}
				added, err := a.Projects.RefreshCommits(ctx, opts.user(), args[0])
				if err != nil {
					return err
				}
				successColor.Fprintf(w, "%d new commit(s)\n", len(added))
				for _, c := range added {
					printCommit(cmd, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Poll every active project")
	return cmd
}
