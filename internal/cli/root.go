// Package cli implements the gitknow command line: index a repository, poll
// its commits and ask questions about it without running the HTTP server.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/pkg/config"
)

var (
	titleColor   = color.New(color.FgHiCyan, color.Bold)
	successColor = color.New(color.FgHiGreen)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.FgHiBlack)
)

// appFactory builds the application for one command run. Tests replace it.
type appFactory func(ctx context.Context) (*app.App, error)

type options struct {
	userID   string
	userName string
	verbose  bool
	newApp   appFactory
}

func defaultFactory(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, cfg.Logger())
}

// NewRootCmd assembles the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultFactory)
}

func newRootCmd(factory appFactory) *cobra.Command {
	opts := &options{newApp: factory}

	root := &cobra.Command{
		Use:   "gitknow",
		Short: "gitknow - ask questions about a GitHub repository",
		Long: `gitknow indexes a repository by summarising and embedding every file,
keeps a summarised log of its recent commits and answers questions about
the code using the most relevant files as context.

Use 'gitknow index' to link a repository and 'gitknow ask' to query it.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.userID, "user", envOr("GITKNOW_USER", "local"), "User id to act as")
	root.PersistentFlags().StringVar(&opts.userName, "name", "", "Display name recorded for the user")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(
		newIndexCmd(opts),
		newProjectsCmd(opts),
		newJoinCmd(opts),
		newCommitsCmd(opts),
		newPollCmd(opts),
		newReindexCmd(opts),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) user() *domain.User {
	return &domain.User{ID: o.userID, Name: o.userName}
}

func (o *options) verboseLog(cmd *cobra.Command, format string, args ...any) {
	if o.verbose {
		dimColor.Fprintf(cmd.ErrOrStderr(), "[DEBUG] "+format+"\n", args...)
	}
}

// withApp builds the application, runs fn and releases it.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.newApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialise: %w", err)
	}
	defer a.Close()
	o.verboseLog(cmd, "using model %s", a.AI.ModelName())
	return fn(ctx, a)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
