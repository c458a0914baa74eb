package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"candidate-screener/internal/errs"
	"candidate-screener/internal/models"
	"candidate-screener/internal/services"
)

type EvaluationHandler struct {
	orchestrator services.Orchestrator
	validate     *validator.Validate
}

func NewEvaluationHandler(orchestrator services.Orchestrator) *EvaluationHandler {
	return &EvaluationHandler{
		orchestrator: orchestrator,
		validate:     validator.New(),
	}
}

// HandleEvaluate handles POST /evaluate. The job is queued and the
// response returns immediately with its id; results arrive through
// GET /result/:id.
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request payload",
		})
	}

	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	cvDocID, err := uuid.Parse(req.CVDocumentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid cv_document_id format",
		})
	}
	projectDocID, err := uuid.Parse(req.ProjectDocumentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project_document_id format",
		})
	}

	job, err := h.orchestrator.Submit(cvDocID, projectDocID, req.JobTitle)
	if err != nil {
		if errs.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create evaluation job",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(models.EvaluateResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

// HandleCancel handles DELETE /evaluate/:id. Only queued or processing
// jobs can be cancelled; terminal jobs return a conflict.
func (h *EvaluationHandler) HandleCancel(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid job ID format",
		})
	}

	if err := h.orchestrator.Cancel(jobID); err != nil {
		switch {
		case errs.IsNotFound(err):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "evaluation job not found",
			})
		case errs.IsInvalidState(err):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to cancel evaluation job",
			})
		}
	}

	return c.JSON(models.EvaluateResponse{
		ID:      jobID.String(),
		Status:  string(models.StatusFailed),
		Message: services.CancelledByUserMessage,
	})
}
