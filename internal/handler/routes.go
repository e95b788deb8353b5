package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/service"
)

// RegisterAPI mounts every project, commit, question and job route on a
// router that is already behind authentication.
func RegisterAPI(api fiber.Router, svc *service.ProjectService, jobs *JobTracker, askTimeout time.Duration) {
	NewProjectHandler(svc, jobs).Register(api)
	NewCommitHandler(svc, jobs).Register(api)
	NewQuestionHandler(svc, askTimeout).Register(api)
	NewJobsHandler(jobs).Register(api)
}
