package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/service"
)

func newIndexCmd(opts *options) *cobra.Command {
	var in service.CreateProjectInput

	cmd := &cobra.Command{
		Use:   "index [repo-url]",
		Short: "Link a repository and index its files and commits",
		Example: `  gitknow index https://github.com/acme/widgets
  gitknow index --project-name widgets --branch develop https://github.com/acme/widgets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.RepoURL = args[0]
			if in.Name == "" {
				in.Name = args[0]
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				w := cmd.OutOrStdout()
				titleColor.Fprintf(w, "Indexing %s\n", in.RepoURL)

				created, err := a.Projects.CreateProject(ctx, opts.user(), in)
				if err != nil {
					return err
				}

				successColor.Fprintf(w, "Project %s created\n", created.Project.ID)
				printReport(cmd, created.Report)
				fmt.Fprintf(w, "Commits summarised: %d\n", created.Commits)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "project-name", "", "Project name (defaults to the URL)")
	cmd.Flags().StringVar(&in.Branch, "branch", "", "Branch to index (defaults to main)")
	cmd.Flags().StringVar(&in.GitHubToken, "token", "", "GitHub token for private repositories")
	return cmd
}

func newReindexCmd(opts *options) *cobra.Command {
	var in service.ReindexInput

	cmd := &cobra.Command{
		Use:   "reindex [project-id]",
		Short: "Index a project again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Projects.Reindex(ctx, opts.user(), args[0], in)
				if err != nil {
					return err
				}
				printReport(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&in.Clear, "clear", false, "Delete the existing index first")
	cmd.Flags().StringVar(&in.GitHubToken, "token", "", "GitHub token for private repositories")
	return cmd
}

func printReport(cmd *cobra.Command, r service.IndexReport) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Files loaded: %d, indexed: %d\n", r.Loaded, r.Indexed)
	if r.Degraded > 0 {
		warnColor.Fprintf(w, "%d file(s) indexed without a summary\n", r.Degraded)
	}
	if r.Failed > 0 {
		warnColor.Fprintf(w, "%d file(s) could not be indexed\n", r.Failed)
	}
}

func newProjectsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects you are a member of",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				projects, err := a.Projects.ListProjects(ctx, opts.user())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(w, "No projects yet. Run 'gitknow index' to link a repository.")
					return nil
				}
				for _, p := range projects {
					fmt.Fprintf(w, "%s  %s  ", p.ID, p.Name)
					dimColor.Fprintf(w, "%s@%s\n", p.RepoURL, p.BranchOrDefault())
				}
				return nil
			})
		},
	}
}

func newJoinCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "join [project-id]",
		Short: "Join an existing project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Projects.JoinProject(ctx, opts.user(), args[0])
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Joined %s\n", p.Name)
				return nil
			})
		},
	}
}
