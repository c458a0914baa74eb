package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"candidate-screener/internal/errs"
	"candidate-screener/internal/models"
)

// EvaluationRepository persists job records. Every state transition is a
// status-guarded single-statement update, so two concurrent writers can
// never both win the same transition and a late pipeline result can never
// overwrite a cancellation.
type EvaluationRepository interface {
	Create(job *models.EvaluationJob) error
	FindByID(id uuid.UUID) (*models.EvaluationJob, error)
	MarkProcessing(id uuid.UUID) (bool, error)
	CompleteIfProcessing(id uuid.UUID, result *EvaluationResultData) (bool, error)
	FailIfProcessing(id uuid.UUID, errorMsg string) (bool, error)
	CancelIfActive(id uuid.UUID, reason string) (bool, error)
	FindPendingJobs(limit int) ([]models.EvaluationJob, error)
	List(status *models.JobStatus, limit, offset int) (int64, []models.EvaluationJob, error)
	Stats() (*JobStats, error)
}

type EvaluationResultData struct {
	CVMatchRate           float64
	CVFeedback            string
	ProjectScore          float64
	ProjectFeedback       string
	OverallSummary        string
	CVDetailedScores      string
	ProjectDetailedScores string
}

type JobStats struct {
	Total               int64
	Queued              int64
	Processing          int64
	Completed           int64
	Failed              int64
	AverageCVMatchRate  float64
	AverageProjectScore float64
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(job *models.EvaluationJob) error {
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create evaluation job: %w", err)
	}
	return nil
}

func (r *evaluationRepository) FindByID(id uuid.UUID) (*models.EvaluationJob, error) {
	var job models.EvaluationJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "evaluation job %s not found", id)
		}
		return nil, fmt.Errorf("failed to find evaluation job: %w", err)
	}
	return &job, nil
}

// MarkProcessing transitions a queued job, or a failed job on the retry
// path, into processing. started_at records the (re)entry; completed_at is
// cleared because the job is no longer terminal. Returns false when the job
// was in neither eligible state.
func (r *evaluationRepository) MarkProcessing(id uuid.UUID) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.EvaluationJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.StatusQueued, models.StatusFailed}).
		Updates(map[string]interface{}{
			"status":       models.StatusProcessing,
			"started_at":   now,
			"completed_at": nil,
			"updated_at":   now,
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// CompleteIfProcessing persists the result fields and transitions to
// completed, but only while the job is still processing. A cancellation
// that raced the pipeline leaves the row untouched and this returns false.
func (r *evaluationRepository) CompleteIfProcessing(id uuid.UUID, data *EvaluationResultData) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.EvaluationJob{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":                  models.StatusCompleted,
			"cv_match_rate":           data.CVMatchRate,
			"cv_feedback":             data.CVFeedback,
			"project_score":           data.ProjectScore,
			"project_feedback":        data.ProjectFeedback,
			"overall_summary":         data.OverallSummary,
			"cv_detailed_scores":      data.CVDetailedScores,
			"project_detailed_scores": data.ProjectDetailedScores,
			"error_message":           nil,
			"completed_at":            now,
			"updated_at":              now,
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to complete job: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// FailIfProcessing records a pipeline failure and increments the retry
// counter. Only legal while processing, for the same race-safety reason as
// CompleteIfProcessing.
func (r *evaluationRepository) FailIfProcessing(id uuid.UUID, errorMsg string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.EvaluationJob{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"completed_at":  now,
			"updated_at":    now,
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// CancelIfActive marks a queued or processing job failed with the given
// reason. Does not touch the retry counter: cancellation is not a pipeline
// failure. Returns false when the job was already terminal.
func (r *evaluationRepository) CancelIfActive(id uuid.UUID, reason string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.EvaluationJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.StatusQueued, models.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": reason,
			"completed_at":  now,
			"updated_at":    now,
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to cancel job: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *evaluationRepository) FindPendingJobs(limit int) ([]models.EvaluationJob, error) {
	var jobs []models.EvaluationJob
	err := r.db.
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return jobs, nil
}

// List returns one page of jobs, newest first, optionally filtered by
// status, together with the total count for that filter.
func (r *evaluationRepository) List(status *models.JobStatus, limit, offset int) (int64, []models.EvaluationJob, error) {
	query := r.db.Model(&models.EvaluationJob{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	var jobs []models.EvaluationJob
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return total, jobs, nil
}

// Stats aggregates per-status counts and average scores over completed jobs.
func (r *evaluationRepository) Stats() (*JobStats, error) {
	stats := &JobStats{}

	type statusCount struct {
		Status models.JobStatus
		Count  int64
	}
	var counts []statusCount
	err := r.db.Model(&models.EvaluationJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}

	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case models.StatusQueued:
			stats.Queued = c.Count
		case models.StatusProcessing:
			stats.Processing = c.Count
		case models.StatusCompleted:
			stats.Completed = c.Count
		case models.StatusFailed:
			stats.Failed = c.Count
		}
	}

	if stats.Completed > 0 {
		type averages struct {
			AvgMatchRate    float64
			AvgProjectScore float64
		}
		var avg averages
		err = r.db.Model(&models.EvaluationJob{}).
			Select("avg(cv_match_rate) as avg_match_rate, avg(project_score) as avg_project_score").
			Where("status = ?", models.StatusCompleted).
			Scan(&avg).Error
		if err != nil {
			return nil, fmt.Errorf("failed to compute score averages: %w", err)
		}
		stats.AverageCVMatchRate = avg.AvgMatchRate
		stats.AverageProjectScore = avg.AvgProjectScore
	}

	return stats, nil
}
