package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// EvaluationJob ties a CV document, a project report document and a job
// title to one evaluation lifecycle. Status moves monotonically along
// queued -> processing -> {completed, failed}; only the orchestrator's retry
// path re-enters processing from failed.
type EvaluationJob struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobTitle          string    `gorm:"type:text;not null" json:"job_title"`
	CVDocumentID      uuid.UUID `gorm:"type:uuid;not null" json:"cv_document_id"`
	ProjectDocumentID uuid.UUID `gorm:"type:uuid;not null" json:"project_document_id"`
	Status            JobStatus `gorm:"not null;default:'queued'" json:"status"`

	CVMatchRate     *float64 `gorm:"type:decimal(4,3)" json:"cv_match_rate,omitempty"`
	CVFeedback      *string  `gorm:"type:text" json:"cv_feedback,omitempty"`
	ProjectScore    *float64 `gorm:"type:decimal(3,2)" json:"project_score,omitempty"`
	ProjectFeedback *string  `gorm:"type:text" json:"project_feedback,omitempty"`
	OverallSummary  *string  `gorm:"type:text" json:"overall_summary,omitempty"`

	// Detailed sub-scores serialized as JSON text. Optional: rows written
	// before sub-scores existed stay readable.
	CVDetailedScores      *string `gorm:"type:text" json:"-"`
	ProjectDetailedScores *string `gorm:"type:text" json:"-"`

	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int     `gorm:"not null;default:0" json:"retry_count"`

	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	StartedAt   *time.Time `gorm:"type:timestamp" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"type:timestamp" json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relations
	CVDocument      Document `gorm:"foreignKey:CVDocumentID" json:"-"`
	ProjectDocument Document `gorm:"foreignKey:ProjectDocumentID" json:"-"`
}

func (EvaluationJob) TableName() string {
	return "evaluation_jobs"
}
