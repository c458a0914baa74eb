package services

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/errs"
	"candidate-screener/internal/models"
	"candidate-screener/internal/repositories"
)

// CancelledByUserMessage is the error message recorded on a job that was
// cancelled through the API rather than failed by the pipeline.
const CancelledByUserMessage = "Cancelled by user"

// JobScheduler hands job ids back to the worker pool, either immediately
// or after a retry delay. The worker implements it; the indirection keeps
// the orchestrator free of any dependency on the pool itself.
type JobScheduler interface {
	EnqueueJob(jobID uuid.UUID)
	EnqueueJobAfter(jobID uuid.UUID, delay time.Duration)
}

// Orchestrator owns the evaluation job lifecycle: submission, execution,
// retry scheduling and cancellation. All state transitions go through the
// repository's guarded updates, so a cancellation can win a race against
// an in-flight evaluation without its result being overwritten.
type Orchestrator interface {
	Submit(cvDocumentID, projectDocumentID uuid.UUID, jobTitle string) (*models.EvaluationJob, error)
	Run(ctx context.Context, jobID uuid.UUID) error
	Cancel(jobID uuid.UUID) error
	Get(jobID uuid.UUID) (*models.EvaluationJob, error)
}

type orchestrator struct {
	evalRepo  repositories.EvaluationRepository
	docRepo   repositories.DocumentRepository
	pdfParser PDFParser
	pipeline  EvaluationPipeline
	cfg       config.WorkerConfig
	log       *zap.Logger

	scheduler JobScheduler

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewOrchestrator(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	pdfParser PDFParser,
	pipeline EvaluationPipeline,
	cfg config.WorkerConfig,
	log *zap.Logger,
) *orchestrator {
	return &orchestrator{
		evalRepo:  evalRepo,
		docRepo:   docRepo,
		pdfParser: pdfParser,
		pipeline:  pipeline,
		cfg:       cfg,
		log:       log,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// SetScheduler wires the worker pool in after construction. Submit and the
// retry path silently skip enqueueing when no scheduler is set; the poller
// will still pick queued jobs up.
func (o *orchestrator) SetScheduler(s JobScheduler) {
	o.scheduler = s
}

// Submit validates that both documents exist, records a queued job and
// hands it to the worker pool.
func (o *orchestrator) Submit(cvDocumentID, projectDocumentID uuid.UUID, jobTitle string) (*models.EvaluationJob, error) {
	if _, err := o.docRepo.FindByID(cvDocumentID); err != nil {
		return nil, err
	}
	if _, err := o.docRepo.FindByID(projectDocumentID); err != nil {
		return nil, err
	}

	job := &models.EvaluationJob{
		ID:                uuid.New(),
		JobTitle:          jobTitle,
		CVDocumentID:      cvDocumentID,
		ProjectDocumentID: projectDocumentID,
		Status:            models.StatusQueued,
	}

	if err := o.evalRepo.Create(job); err != nil {
		return nil, err
	}

	o.log.Info("evaluation job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("job_title", jobTitle))

	if o.scheduler != nil {
		o.scheduler.EnqueueJob(job.ID)
	}

	return job, nil
}

// Run executes one evaluation attempt for the job. At most one Run per job
// id is active at a time; a duplicate enqueue (pool plus poller) is a
// no-op. A job that is no longer eligible for processing, because it
// completed or was cancelled in the meantime, is also a no-op.
func (o *orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	if !o.acquire(jobID) {
		return nil
	}
	defer o.release(jobID)

	job, err := o.evalRepo.FindByID(jobID)
	if err != nil {
		return err
	}

	// Resolve documents before touching the job status: a missing
	// document is permanent, so the job goes straight to failed without
	// burning an attempt on the pipeline.
	cvDoc, err := o.docRepo.FindByID(job.CVDocumentID)
	if err != nil {
		return o.abort(jobID, err)
	}
	projectDoc, err := o.docRepo.FindByID(job.ProjectDocumentID)
	if err != nil {
		return o.abort(jobID, err)
	}

	moved, err := o.evalRepo.MarkProcessing(jobID)
	if err != nil {
		return err
	}
	if !moved {
		// Completed, cancelled, or claimed elsewhere.
		return nil
	}

	o.log.Info("evaluation started",
		zap.String("job_id", jobID.String()),
		zap.Int("retry_count", job.RetryCount))

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.EvaluationTimeout)
	defer cancel()

	result, err := o.evaluate(runCtx, job, cvDoc, projectDoc)
	if err != nil {
		o.fail(job, err)
		return err
	}

	applied, err := o.evalRepo.CompleteIfProcessing(jobID, result)
	if err != nil {
		return err
	}
	if !applied {
		o.log.Warn("job no longer processing, result discarded",
			zap.String("job_id", jobID.String()))
		return nil
	}

	o.log.Info("evaluation completed",
		zap.String("job_id", jobID.String()),
		zap.Float64("cv_match_rate", result.CVMatchRate),
		zap.Float64("project_score", result.ProjectScore))
	return nil
}

// Cancel marks a queued or processing job as failed with a cancellation
// message. Terminal jobs cannot be cancelled.
func (o *orchestrator) Cancel(jobID uuid.UUID) error {
	applied, err := o.evalRepo.CancelIfActive(jobID, CancelledByUserMessage)
	if err != nil {
		return err
	}
	if !applied {
		job, err := o.evalRepo.FindByID(jobID)
		if err != nil {
			return err
		}
		return errs.Newf(errs.KindInvalidState, "job %s is already %s and cannot be cancelled", jobID, job.Status)
	}

	o.log.Info("evaluation cancelled", zap.String("job_id", jobID.String()))
	return nil
}

func (o *orchestrator) Get(jobID uuid.UUID) (*models.EvaluationJob, error) {
	return o.evalRepo.FindByID(jobID)
}

func (o *orchestrator) evaluate(
	ctx context.Context,
	job *models.EvaluationJob,
	cvDoc, projectDoc *models.Document,
) (*repositories.EvaluationResultData, error) {
	cvText, err := o.pdfParser.ExtractText(cvDoc.FilePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to parse CV document", err)
	}
	projectText, err := o.pdfParser.ExtractText(projectDoc.FilePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to parse project document", err)
	}

	cvResult, err := o.pipeline.EvaluateCV(ctx, cvText, job.JobTitle)
	if err != nil {
		return nil, err
	}

	projectResult, err := o.pipeline.EvaluateProject(ctx, projectText)
	if err != nil {
		return nil, err
	}

	summary, err := o.pipeline.Synthesize(ctx, cvResult, projectResult, job.JobTitle)
	if err != nil {
		return nil, err
	}

	cvScores, err := json.Marshal(cvResult.DetailedScores)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to encode CV scores", err)
	}
	projectScores, err := json.Marshal(projectResult.DetailedScores)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to encode project scores", err)
	}

	return &repositories.EvaluationResultData{
		CVMatchRate:           cvResult.MatchRate,
		CVFeedback:            cvResult.Feedback,
		ProjectScore:          projectResult.Score,
		ProjectFeedback:       projectResult.Feedback,
		OverallSummary:        summary,
		CVDetailedScores:      string(cvScores),
		ProjectDetailedScores: string(projectScores),
	}, nil
}

// fail records the attempt's failure. Retryable failures under the budget
// are re-enqueued with exponential delay; everything else stays failed.
func (o *orchestrator) fail(job *models.EvaluationJob, cause error) {
	applied, err := o.evalRepo.FailIfProcessing(job.ID, cause.Error())
	if err != nil {
		o.log.Error("failed to record job failure",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if !applied {
		// Cancelled while the pipeline was running. The cancellation
		// already recorded its own terminal state.
		return
	}

	attempts := job.RetryCount + 1
	o.log.Warn("evaluation failed",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	if !retryable(cause) || attempts >= o.cfg.RetryMaxAttempts || o.scheduler == nil {
		return
	}

	delay := time.Duration(math.Pow(o.cfg.RetryBackoffBase, float64(attempts))) * time.Second
	o.log.Info("scheduling retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", attempts+1),
		zap.Duration("delay", delay))
	o.scheduler.EnqueueJobAfter(job.ID, delay)
}

// retryable reports whether another attempt could plausibly succeed.
// Missing documents, unparseable PDFs and rejected API requests will fail
// identically every time.
func retryable(err error) bool {
	switch errs.KindOf(err) {
	case errs.KindFatal, errs.KindNotFound, errs.KindInvalidState:
		return false
	default:
		return true
	}
}

// abort fails a job that never made it into processing, without counting
// a retry attempt.
func (o *orchestrator) abort(jobID uuid.UUID, cause error) error {
	if _, ferr := o.evalRepo.CancelIfActive(jobID, cause.Error()); ferr != nil {
		o.log.Error("failed to abort job",
			zap.String("job_id", jobID.String()), zap.Error(ferr))
	}
	return cause
}

func (o *orchestrator) acquire(jobID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[jobID]; running {
		return false
	}
	o.inFlight[jobID] = struct{}{}
	return true
}

func (o *orchestrator) release(jobID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, jobID)
}
