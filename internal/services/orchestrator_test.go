package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/errs"
	"candidate-screener/internal/models"
	"candidate-screener/internal/repositories"
)

// memEvalRepo mirrors the guarded-update semantics of the SQL repository
// in memory.
type memEvalRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.EvaluationJob
}

func newMemEvalRepo() *memEvalRepo {
	return &memEvalRepo{jobs: make(map[uuid.UUID]*models.EvaluationJob)}
}

func (r *memEvalRepo) Create(job *models.EvaluationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memEvalRepo) FindByID(id uuid.UUID) (*models.EvaluationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "evaluation job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

func (r *memEvalRepo) MarkProcessing(id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || (job.Status != models.StatusQueued && job.Status != models.StatusFailed) {
		return false, nil
	}
	now := time.Now()
	job.Status = models.StatusProcessing
	job.StartedAt = &now
	job.CompletedAt = nil
	return true, nil
}

func (r *memEvalRepo) CompleteIfProcessing(id uuid.UUID, data *repositories.EvaluationResultData) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.StatusProcessing {
		return false, nil
	}
	now := time.Now()
	job.Status = models.StatusCompleted
	job.CVMatchRate = &data.CVMatchRate
	job.CVFeedback = &data.CVFeedback
	job.ProjectScore = &data.ProjectScore
	job.ProjectFeedback = &data.ProjectFeedback
	job.OverallSummary = &data.OverallSummary
	job.CVDetailedScores = &data.CVDetailedScores
	job.ProjectDetailedScores = &data.ProjectDetailedScores
	job.ErrorMessage = nil
	job.CompletedAt = &now
	return true, nil
}

func (r *memEvalRepo) FailIfProcessing(id uuid.UUID, errorMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.StatusProcessing {
		return false, nil
	}
	now := time.Now()
	job.Status = models.StatusFailed
	job.ErrorMessage = &errorMsg
	job.RetryCount++
	job.CompletedAt = &now
	return true, nil
}

func (r *memEvalRepo) CancelIfActive(id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || (job.Status != models.StatusQueued && job.Status != models.StatusProcessing) {
		return false, nil
	}
	now := time.Now()
	job.Status = models.StatusFailed
	job.ErrorMessage = &reason
	job.CompletedAt = &now
	return true, nil
}

func (r *memEvalRepo) FindPendingJobs(limit int) ([]models.EvaluationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EvaluationJob
	for _, job := range r.jobs {
		if job.Status == models.StatusQueued {
			out = append(out, *job)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memEvalRepo) List(status *models.JobStatus, limit, offset int) (int64, []models.EvaluationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EvaluationJob
	for _, job := range r.jobs {
		if status == nil || job.Status == *status {
			out = append(out, *job)
		}
	}
	return int64(len(out)), out, nil
}

func (r *memEvalRepo) Stats() (*repositories.JobStats, error) {
	return &repositories.JobStats{}, nil
}

type memDocRepo struct {
	docs map[uuid.UUID]*models.Document
}

func newMemDocRepo(docs ...*models.Document) *memDocRepo {
	r := &memDocRepo{docs: make(map[uuid.UUID]*models.Document)}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *memDocRepo) Create(doc *models.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *memDocRepo) FindByID(id uuid.UUID) (*models.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "document %s not found", id)
	}
	return doc, nil
}

type fakeParser struct{}

func (fakeParser) ExtractText(filePath string) (string, error) {
	return "text from " + filePath, nil
}

// stubPipeline returns canned results or a scripted error, with optional
// hooks to coordinate with the test mid-evaluation.
type stubPipeline struct {
	mu       sync.Mutex
	cvCalls  int
	err      error
	onCV     func()
	cvResult *CVEvaluationResult
}

func (p *stubPipeline) EvaluateCV(ctx context.Context, cvText, jobTitle string) (*CVEvaluationResult, error) {
	p.mu.Lock()
	p.cvCalls++
	p.mu.Unlock()
	if p.onCV != nil {
		p.onCV()
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.cvResult != nil {
		return p.cvResult, nil
	}
	return &CVEvaluationResult{
		DetailedScores: models.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 4, RelevantAchievements: 3, CulturalFit: 4},
		MatchRate:      0.77,
		Feedback:       "solid backend background",
	}, nil
}

func (p *stubPipeline) EvaluateProject(ctx context.Context, projectText string) (*ProjectEvaluationResult, error) {
	return &ProjectEvaluationResult{
		DetailedScores: models.ProjectDetailedScores{Correctness: 4, CodeQuality: 4, Resilience: 3, Documentation: 4, Creativity: 3},
		Score:          3.65,
		Feedback:       "meets the requirements",
	}, nil
}

func (p *stubPipeline) Synthesize(ctx context.Context, cvResult *CVEvaluationResult, projectResult *ProjectEvaluationResult, jobTitle string) (string, error) {
	return "strong candidate overall", nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	enqueued  []uuid.UUID
	delayed   []uuid.UUID
	lastDelay time.Duration
}

func (s *fakeScheduler) EnqueueJob(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, jobID)
}

func (s *fakeScheduler) EnqueueJobAfter(jobID uuid.UUID, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed = append(s.delayed, jobID)
	s.lastDelay = delay
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:       1,
		RetryMaxAttempts:  3,
		RetryBackoffBase:  2,
		EvaluationTimeout: time.Minute,
	}
}

func newTestOrchestrator(t *testing.T, evalRepo repositories.EvaluationRepository, docRepo repositories.DocumentRepository, pipeline EvaluationPipeline) (*orchestrator, *fakeScheduler) {
	t.Helper()
	o := NewOrchestrator(evalRepo, docRepo, fakeParser{}, pipeline, testWorkerConfig(), zap.NewNop())
	sched := &fakeScheduler{}
	o.SetScheduler(sched)
	return o, sched
}

func seedDocs() (*models.Document, *models.Document) {
	cv := &models.Document{ID: uuid.New(), DocumentType: models.DocumentTypeCV, FilePath: "/tmp/cv.pdf"}
	project := &models.Document{ID: uuid.New(), DocumentType: models.DocumentTypeProjectReport, FilePath: "/tmp/project.pdf"}
	return cv, project
}

func TestOrchestratorSubmitEnqueuesQueuedJob(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	o, sched := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), &stubPipeline{})

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, "Backend Engineer", job.JobTitle)

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, stored.Status)
	assert.Equal(t, []uuid.UUID{job.ID}, sched.enqueued)
}

func TestOrchestratorSubmitRejectsMissingDocument(t *testing.T) {
	cv, project := seedDocs()
	o, sched := newTestOrchestrator(t, newMemEvalRepo(), newMemDocRepo(cv), &stubPipeline{})

	_, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, sched.enqueued)
}

func TestOrchestratorRunCompletesJob(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	o, _ := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), &stubPipeline{})

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	require.NoError(t, o.Run(context.Background(), job.ID))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CVMatchRate)
	assert.InDelta(t, 0.77, *stored.CVMatchRate, 1e-9)
	require.NotNil(t, stored.ProjectScore)
	assert.InDelta(t, 3.65, *stored.ProjectScore, 1e-9)
	require.NotNil(t, stored.OverallSummary)
	assert.Equal(t, "strong candidate overall", *stored.OverallSummary)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.ErrorMessage)
	require.NotNil(t, stored.CVDetailedScores)
	assert.Contains(t, *stored.CVDetailedScores, "technical_skills_match")
}

func TestOrchestratorRunTransientFailureSchedulesRetry(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	pipeline := &stubPipeline{err: errs.New(errs.KindTransient, "model overloaded")}
	o, sched := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), pipeline)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	require.Error(t, o.Run(context.Background(), job.ID))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	require.Equal(t, []uuid.UUID{job.ID}, sched.delayed)
	// base^attempts with base 2 and one recorded attempt
	assert.Equal(t, 2*time.Second, sched.lastDelay)
}

func TestOrchestratorRunFatalFailureDoesNotRetry(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	pipeline := &stubPipeline{err: errs.New(errs.KindFatal, "API key rejected")}
	o, sched := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), pipeline)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	require.Error(t, o.Run(context.Background(), job.ID))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Empty(t, sched.delayed)
}

func TestOrchestratorRunStopsRetryingAtBudget(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	pipeline := &stubPipeline{err: errs.New(errs.KindTransient, "model overloaded")}
	o, sched := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), pipeline)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	// Two failed attempts already recorded; the third is the last one.
	for i := 0; i < 3; i++ {
		require.Error(t, o.Run(context.Background(), job.ID))
	}

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	// Only the first two failures are under the budget.
	assert.Len(t, sched.delayed, 2)
	assert.Equal(t, 4*time.Second, sched.lastDelay)
}

func TestOrchestratorRunMissingDocumentFailsWithoutRetry(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	docRepo := newMemDocRepo(cv, project)
	o, sched := newTestOrchestrator(t, evalRepo, docRepo, &stubPipeline{})

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	// Document disappears between submission and execution.
	delete(docRepo.docs, project.ID)

	err = o.Run(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.StartedAt)
	assert.Empty(t, sched.delayed)
}

func TestOrchestratorCancelQueuedJob(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	o, _ := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), &stubPipeline{})

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	require.NoError(t, o.Cancel(job.ID))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Cancelled by user", *stored.ErrorMessage)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestOrchestratorCancelCompletedJobIsInvalid(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	o, _ := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), &stubPipeline{})

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), job.ID))

	err = o.Cancel(job.ID)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidState(err))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestOrchestratorCancelUnknownJob(t *testing.T) {
	cv, project := seedDocs()
	o, _ := newTestOrchestrator(t, newMemEvalRepo(), newMemDocRepo(cv, project), &stubPipeline{})

	err := o.Cancel(uuid.New())
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestOrchestratorCancelDuringRunDiscardsResult(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()

	var o *orchestrator
	var jobID uuid.UUID
	pipeline := &stubPipeline{}
	pipeline.onCV = func() {
		// User cancels while the model call is in flight.
		require.NoError(t, o.Cancel(jobID))
	}

	o, _ = newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), pipeline)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)
	jobID = job.ID

	require.NoError(t, o.Run(context.Background(), jobID))

	stored, err := evalRepo.FindByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Cancelled by user", *stored.ErrorMessage)
	// The late pipeline result must not overwrite the cancellation.
	assert.Nil(t, stored.CVMatchRate)
}

func TestOrchestratorRunIsSingleFlightPerJob(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()

	started := make(chan struct{})
	release := make(chan struct{})
	pipeline := &stubPipeline{}
	pipeline.onCV = func() {
		close(started)
		<-release
	}

	o, _ := newTestOrchestrator(t, evalRepo, newMemDocRepo(cv, project), pipeline)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), job.ID) }()

	<-started
	// Second Run for the same id must back off immediately.
	require.NoError(t, o.Run(context.Background(), job.ID))

	close(release)
	require.NoError(t, <-done)

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	assert.Equal(t, 1, pipeline.cvCalls)
}

// timeoutPipeline blocks in the CV stage until the run context expires.
type timeoutPipeline struct {
	stubPipeline
}

func (p *timeoutPipeline) EvaluateCV(ctx context.Context, cvText, jobTitle string) (*CVEvaluationResult, error) {
	<-ctx.Done()
	return nil, errs.Wrap(errs.KindTransient, "cv evaluation aborted", ctx.Err())
}

func TestOrchestratorRunFailsWhenEvaluationTimeoutExpires(t *testing.T) {
	cv, project := seedDocs()
	evalRepo := newMemEvalRepo()
	cfg := testWorkerConfig()
	cfg.EvaluationTimeout = 20 * time.Millisecond
	o := NewOrchestrator(evalRepo, newMemDocRepo(cv, project), fakeParser{}, &timeoutPipeline{}, cfg, zap.NewNop())
	sched := &fakeScheduler{}
	o.SetScheduler(sched)

	job, err := o.Submit(cv.ID, project.ID, "Backend Engineer")
	require.NoError(t, err)

	require.Error(t, o.Run(context.Background(), job.ID))

	stored, err := evalRepo.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "context deadline exceeded")
	assert.Equal(t, 1, stored.RetryCount)

	// The timeout is transient, so a retry is still scheduled.
	require.Equal(t, []uuid.UUID{job.ID}, sched.delayed)
	assert.Equal(t, 2*time.Second, sched.lastDelay)
}
