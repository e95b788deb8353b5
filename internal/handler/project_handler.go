package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/service"
)

// ProjectHandler handles project lifecycle and membership endpoints.
type ProjectHandler struct {
	svc  *service.ProjectService
	jobs *JobTracker
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(svc *service.ProjectService, jobs *JobTracker) *ProjectHandler {
	return &ProjectHandler{svc: svc, jobs: jobs}
}

// Register sets up project routes on a protected group.
func (h *ProjectHandler) Register(router fiber.Router) {
	projects := router.Group("/projects")
	projects.Post("/", h.Create)
	projects.Get("/", h.List)
	projects.Get("/:id", h.Get)
	projects.Delete("/:id", h.Archive)
	projects.Post("/:id/join", h.Join)
	projects.Get("/:id/members", h.Members)
	projects.Post("/:id/reindex", h.Reindex)
}

// Create links a repository and indexes it. This can take minutes for large repositories.
func (h *ProjectHandler) Create(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var body service.CreateProjectInput
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	created, err := h.svc.CreateProject(c.Context(), user, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// List returns the user's active projects.
func (h *ProjectHandler) List(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	projects, err := h.svc.ListProjects(c.Context(), user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects, "count": len(projects)})
}

// Get returns one project.
func (h *ProjectHandler) Get(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	project, err := h.svc.GetProject(c.Context(), user, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// Archive soft-deletes a project.
func (h *ProjectHandler) Archive(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	if err := h.svc.ArchiveProject(c.Context(), user, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Join adds the caller to a project, as when following an invite link.
func (h *ProjectHandler) Join(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	project, err := h.svc.JoinProject(c.Context(), user, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// Members lists the project team.
func (h *ProjectHandler) Members(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	members, err := h.svc.TeamMembers(c.Context(), user, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"members": members, "count": len(members)})
}

// Reindex starts a background re-index job. Body: {"clear": true, "github_token": "..."}.
func (h *ProjectHandler) Reindex(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var body service.ReindexInput
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	// Check access synchronously so the caller gets 403/404 instead of a failed job.
	id := strings.Clone(c.Params("id")) // used after the handler returns
	if _, err := h.svc.GetProject(c.Context(), user, id); err != nil {
		return respondError(c, err)
	}

	job := h.jobs.Start(JobReindex, id, user.ID, func(ctx context.Context) (any, error) {
		return h.svc.Reindex(ctx, user, id, body)
	})
	return c.Status(fiber.StatusAccepted).JSON(job)
}
