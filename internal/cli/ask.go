package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/service"
)

func newAskCmd(opts *options) *cobra.Command {
	var (
		render bool
		save   bool
		width  int
	)

	cmd := &cobra.Command{
		Use:   "ask [project-id] [question]",
		Short: "Ask a question about a project's code",
		Example: `  gitknow ask 3f1c... "How does authentication work?"
  gitknow ask --render --save 3f1c... "Where is the database schema?"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			question := strings.Join(args[1:], " ")

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				w := cmd.OutOrStdout()
				answer, err := a.Projects.Ask(ctx, opts.user(), projectID, question)
				if err != nil {
					return err
				}
				if answer.Indirect {
					warnColor.Fprintln(w, "No file matched closely; answering from the whole project.")
				}

				// Rendering needs the complete markdown, so only stream raw text.
				var sb strings.Builder
				for fragment := range answer.Fragments {
					sb.WriteString(fragment)
					if !render {
						fmt.Fprint(w, fragment)
					}
				}
				if render {
					out, err := renderMarkdown(sb.String(), width)
					if err != nil {
						return err
					}
					fmt.Fprint(w, out)
				} else {
					fmt.Fprintln(w)
				}

				if len(answer.FileReferences) > 0 {
					titleColor.Fprintln(w, "\nReferences")
					for _, ref := range answer.FileReferences {
						dimColor.Fprintf(w, "  %s\n", ref.FileName)
					}
				}

				if save {
					q, err := a.Projects.SaveAnswer(ctx, opts.user(), service.SaveAnswerInput{
						ProjectID:      projectID,
						Question:       question,
						Answer:         sb.String(),
						FileReferences: answer.FileReferences,
					})
					if err != nil {
						return err
					}
					successColor.Fprintf(w, "Saved as %s\n", q.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "Render the answer as formatted markdown")
	cmd.Flags().BoolVar(&save, "save", false, "Save the question and answer to the project")
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width for --render")
	return cmd
}

func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render answer: %w", err)
	}
	return out, nil
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [project-id]",
		Short: "List saved questions of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				questions, err := a.Projects.Questions(ctx, opts.user(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, q := range questions {
					titleColor.Fprintf(w, "Q: %s\n", q.Question)
					fmt.Fprintf(w, "%s\n", q.Answer)
					dimColor.Fprintf(w, "  %s, %d reference(s)\n\n", q.CreatedAt.Format("2006-01-02 15:04"), len(q.FileReferences))
				}
				return nil
			})
		},
	}
}
