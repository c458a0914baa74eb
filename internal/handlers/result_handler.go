package handlers

import (
	"encoding/json"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"candidate-screener/internal/errs"
	"candidate-screener/internal/models"
	"candidate-screener/internal/repositories"
	"candidate-screener/internal/services"
)

type ResultHandler struct {
	orchestrator services.Orchestrator
	evalRepo     repositories.EvaluationRepository
	log          *zap.Logger
}

func NewResultHandler(orchestrator services.Orchestrator, evalRepo repositories.EvaluationRepository, log *zap.Logger) *ResultHandler {
	return &ResultHandler{orchestrator: orchestrator, evalRepo: evalRepo, log: log}
}

// HandleGetResult handles GET /result/:id. Queued and processing jobs
// return only their status; completed jobs carry the evaluation payload
// and failed jobs the error message.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid job ID format",
		})
	}

	job, err := h.orchestrator.Get(jobID)
	if err != nil {
		if errs.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "evaluation job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load evaluation job",
		})
	}

	response := models.ResultResponse{
		ID:          job.ID.String(),
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}

	if job.Status == models.StatusCompleted {
		response.Result = h.buildResult(job)
	}

	if job.Status == models.StatusFailed {
		response.ErrorMessage = job.ErrorMessage
	}

	return c.JSON(response)
}

func (h *ResultHandler) buildResult(job *models.EvaluationJob) *models.EvaluationData {
	result := &models.EvaluationData{}

	if job.CVMatchRate != nil {
		result.CVMatchRate = *job.CVMatchRate
	}
	if job.CVFeedback != nil {
		result.CVFeedback = *job.CVFeedback
	}
	if job.ProjectScore != nil {
		result.ProjectScore = *job.ProjectScore
	}
	if job.ProjectFeedback != nil {
		result.ProjectFeedback = *job.ProjectFeedback
	}
	if job.OverallSummary != nil {
		result.OverallSummary = *job.OverallSummary
	}

	// Detailed sub-scores are optional: rows written before they existed
	// simply omit them.
	if job.CVDetailedScores != nil {
		var scores models.CVDetailedScores
		if err := json.Unmarshal([]byte(*job.CVDetailedScores), &scores); err != nil {
			h.log.Warn("failed to decode stored CV scores",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		} else {
			result.CVDetailedScores = &scores
		}
	}
	if job.ProjectDetailedScores != nil {
		var scores models.ProjectDetailedScores
		if err := json.Unmarshal([]byte(*job.ProjectDetailedScores), &scores); err != nil {
			h.log.Warn("failed to decode stored project scores",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		} else {
			result.ProjectDetailedScores = &scores
		}
	}

	return result
}

// HandleList handles GET /results, newest jobs first. Accepts optional
// status, limit and offset query parameters.
func (h *ResultHandler) HandleList(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	var status *models.JobStatus
	if raw := c.Query("status"); raw != "" {
		s := models.JobStatus(raw)
		switch s {
		case models.StatusQueued, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
			status = &s
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid status filter",
			})
		}
	}

	total, jobs, err := h.evalRepo.List(status, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list evaluation jobs",
		})
	}

	items := make([]models.JobListItem, 0, len(jobs))
	for _, job := range jobs {
		item := models.JobListItem{
			ID:           job.ID.String(),
			JobTitle:     job.JobTitle,
			Status:       string(job.Status),
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
			CVMatchRate:  job.CVMatchRate,
			ProjectScore: job.ProjectScore,
		}
		if job.CompletedAt != nil {
			completed := job.CompletedAt.Format(time.RFC3339)
			item.CompletedAt = &completed
		}
		items = append(items, item)
	}

	return c.JSON(models.JobListResponse{
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Jobs:   items,
	})
}

// HandleStats handles GET /stats.
func (h *ResultHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.evalRepo.Stats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute job statistics",
		})
	}

	return c.JSON(models.StatsResponse{
		TotalJobs:           stats.Total,
		Queued:              stats.Queued,
		Processing:          stats.Processing,
		Completed:           stats.Completed,
		Failed:              stats.Failed,
		AverageCVMatchRate:  math.Round(stats.AverageCVMatchRate*1000) / 1000,
		AverageProjectScore: math.Round(stats.AverageProjectScore*100) / 100,
	})
}
