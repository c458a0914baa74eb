package models

import "time"

type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	DocumentType string `json:"document_type"`
	FileSize     int64  `json:"file_size"`
}

type EvaluateRequest struct {
	JobTitle          string `json:"job_title" validate:"required"`
	CVDocumentID      string `json:"cv_document_id" validate:"required,uuid"`
	ProjectDocumentID string `json:"project_document_id" validate:"required,uuid"`
}

type EvaluateResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CVDetailedScores holds the four weighted CV criteria, each on a 1-5 scale.
type CVDetailedScores struct {
	TechnicalSkillsMatch float64 `json:"technical_skills_match"`
	ExperienceLevel      float64 `json:"experience_level"`
	RelevantAchievements float64 `json:"relevant_achievements"`
	CulturalFit          float64 `json:"cultural_fit"`
}

// ProjectDetailedScores holds the five weighted project criteria, each on a
// 1-5 scale.
type ProjectDetailedScores struct {
	Correctness   float64 `json:"correctness"`
	CodeQuality   float64 `json:"code_quality"`
	Resilience    float64 `json:"resilience"`
	Documentation float64 `json:"documentation"`
	Creativity    float64 `json:"creativity"`
}

type EvaluationData struct {
	CVMatchRate           float64                `json:"cv_match_rate"`
	CVFeedback            string                 `json:"cv_feedback"`
	ProjectScore          float64                `json:"project_score"`
	ProjectFeedback       string                 `json:"project_feedback"`
	OverallSummary        string                 `json:"overall_summary"`
	CVDetailedScores      *CVDetailedScores      `json:"cv_detailed_scores,omitempty"`
	ProjectDetailedScores *ProjectDetailedScores `json:"project_detailed_scores,omitempty"`
}

type ResultResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Result       *EvaluationData `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

type JobListItem struct {
	ID           string   `json:"id"`
	JobTitle     string   `json:"job_title"`
	Status       string   `json:"status"`
	CreatedAt    string   `json:"created_at"`
	CompletedAt  *string  `json:"completed_at,omitempty"`
	CVMatchRate  *float64 `json:"cv_match_rate,omitempty"`
	ProjectScore *float64 `json:"project_score,omitempty"`
}

type JobListResponse struct {
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Jobs   []JobListItem `json:"jobs"`
}

type StatsResponse struct {
	TotalJobs           int64   `json:"total_jobs"`
	Queued              int64   `json:"queued"`
	Processing          int64   `json:"processing"`
	Completed           int64   `json:"completed"`
	Failed              int64   `json:"failed"`
	AverageCVMatchRate  float64 `json:"average_cv_match_rate"`
	AverageProjectScore float64 `json:"average_project_score"`
}
