package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/service"
)

// CommitHandler serves stored commits and triggers refreshes.
type CommitHandler struct {
	svc  *service.ProjectService
	jobs *JobTracker
}

// NewCommitHandler creates a new commit handler.
func NewCommitHandler(svc *service.ProjectService, jobs *JobTracker) *CommitHandler {
	return &CommitHandler{svc: svc, jobs: jobs}
}

// Register sets up commit routes.
func (h *CommitHandler) Register(router fiber.Router) {
	router.Get("/projects/:id/commits", h.List)
	router.Post("/projects/:id/commits/refresh", h.Refresh)
}

// List returns stored commits, most recent first. It never polls the repository.
func (h *CommitHandler) List(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	commits, err := h.svc.Commits(c.Context(), user, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"commits": commits, "count": len(commits)})
}

// Refresh starts a background poll for new commits.
func (h *CommitHandler) Refresh(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	id := strings.Clone(c.Params("id")) // used after the handler returns
	if _, err := h.svc.GetProject(c.Context(), user, id); err != nil {
		return respondError(c, err)
	}

	job := h.jobs.Start(JobRefreshCommits, id, user.ID, func(ctx context.Context) (any, error) {
		commits, err := h.svc.RefreshCommits(ctx, user, id)
		if err != nil {
			return nil, err
		}
		return fiber.Map{"new_commits": len(commits)}, nil
	})
	return c.Status(fiber.StatusAccepted).JSON(job)
}
