package handler

import (
	"bufio"
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/service"
)

// QuestionHandler answers questions over SSE and stores saved answers.
type QuestionHandler struct {
	svc     *service.ProjectService
	timeout time.Duration
}

// NewQuestionHandler creates a question handler. timeout bounds a whole answer stream.
func NewQuestionHandler(svc *service.ProjectService, timeout time.Duration) *QuestionHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &QuestionHandler{svc: svc, timeout: timeout}
}

// Register sets up question routes.
func (h *QuestionHandler) Register(router fiber.Router) {
	router.Post("/projects/:id/ask", h.Ask)
	router.Post("/projects/:id/questions", h.Save)
	router.Get("/projects/:id/questions", h.List)
}

type referencesEvent struct {
	Indirect       bool                   `json:"indirect"`
	FileReferences []domain.FileReference `json:"file_references"`
}

// Ask streams an answer as Server-Sent Events: one "references" event, then
// "delta" events carrying {"text"}, then "done".
func (h *QuestionHandler) Ask(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// The stream is written after this handler returns, so it cannot use the request context.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	answer, err := h.svc.Ask(ctx, user, c.Params("id"), body.Question)
	if err != nil {
		cancel()
		return respondError(c, err)
	}

	setSSEHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeEvent(w, "references", referencesEvent{Indirect: answer.Indirect, FileReferences: answer.FileReferences})
		if err := w.Flush(); err != nil {
			return
		}
		for fragment := range answer.Fragments {
			writeEvent(w, "delta", fiber.Map{"text": fragment})
			if err := w.Flush(); err != nil {
				slog.Debug("client went away during answer", "error", err)
				return
			}
		}
		writeEvent(w, "done", fiber.Map{})
		_ = w.Flush()
	})
}

// Save stores a finished answer.
func (h *QuestionHandler) Save(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var body service.SaveAnswerInput
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	body.ProjectID = c.Params("id")

	saved, err := h.svc.SaveAnswer(c.Context(), user, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

// List returns saved answers, newest first.
func (h *QuestionHandler) List(c fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return unauthorized(c)
	}

	questions, err := h.svc.Questions(c.Context(), user, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"questions": questions, "count": len(questions)})
}
