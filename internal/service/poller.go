package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourpie/gitknow/internal/port"
)

// Poller periodically stores new commits for every active project.
type Poller struct {
	store    port.ProjectStore
	ingestor *Ingestor
	interval time.Duration
	log      *slog.Logger
}

// NewPoller creates a commit poller that ticks every interval.
func NewPoller(store port.ProjectStore, ingestor *Ingestor, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{store: store, ingestor: ingestor, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled, polling once per tick.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("commit poller started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("commit poller stopped")
			return
		case <-ticker.C:
			p.PollAll(ctx)
		}
	}
}

// PollAll polls every active project once. A failing project does not stop the others.
// It returns how many new commits were stored in total.
func (p *Poller) PollAll(ctx context.Context) int {
	projects, err := p.store.ListActiveProjects(ctx)
	if err != nil {
		p.log.Error("list projects for polling", "error", err)
		return 0
	}

	total := 0
	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		commits, err := p.ingestor.PollCommits(ctx, project.ID)
		if err != nil {
			p.log.Warn("poll failed", "project_id", project.ID, "error", err)
			continue
		}
		total += len(commits)
	}
	p.log.Debug("poll round finished", "projects", len(projects), "new_commits", total)
	return total
}
