package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"candidate-screener/internal/repositories"
)

// Worker runs a fixed pool of goroutines that drain the job queue, plus a
// poller that sweeps queued jobs out of the database. The poller makes the
// queue crash-safe: jobs submitted before a restart are picked up again
// without any enqueue surviving in memory.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
	EnqueueJobAfter(jobID uuid.UUID, delay time.Duration)
}

type worker struct {
	evalRepo     repositories.EvaluationRepository
	orchestrator Orchestrator
	log          *zap.Logger

	jobQueue     chan uuid.UUID
	concurrency  int
	pollInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}

	timerMu sync.Mutex
	timers  map[uuid.UUID]*time.Timer
}

func NewWorker(
	evalRepo repositories.EvaluationRepository,
	orchestrator Orchestrator,
	concurrency int,
	log *zap.Logger,
) Worker {
	return &worker{
		evalRepo:     evalRepo,
		orchestrator: orchestrator,
		log:          log,
		jobQueue:     make(chan uuid.UUID, 100),
		concurrency:  concurrency,
		pollInterval: 10 * time.Second,
		stopChan:     make(chan struct{}),
		timers:       make(map[uuid.UUID]*time.Timer),
	}
}

func (w *worker) Start(ctx context.Context) {
	w.log.Info("starting worker pool", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs(ctx)
}

func (w *worker) Stop() {
	w.log.Info("stopping worker pool")
	close(w.stopChan)

	w.timerMu.Lock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.timerMu.Unlock()

	w.wg.Wait()
	w.log.Info("worker pool stopped")
}

func (w *worker) EnqueueJob(jobID uuid.UUID) {
	select {
	case w.jobQueue <- jobID:
	case <-w.stopChan:
		w.log.Warn("worker stopped, job stays queued for the next start",
			zap.String("job_id", jobID.String()))
	}
}

// EnqueueJobAfter schedules a delayed enqueue, used by the retry path. A
// pending timer for the same job is replaced. The timer is in-memory only:
// if the process dies before it fires, the retry is lost and the job stays
// failed with its error recorded, until the candidate is resubmitted.
func (w *worker) EnqueueJobAfter(jobID uuid.UUID, delay time.Duration) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if t, ok := w.timers[jobID]; ok {
		t.Stop()
	}
	w.timers[jobID] = time.AfterFunc(delay, func() {
		w.timerMu.Lock()
		delete(w.timers, jobID)
		w.timerMu.Unlock()
		w.EnqueueJob(jobID)
	})
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case jobID := <-w.jobQueue:
			w.log.Debug("worker picked up job",
				zap.Int("worker_id", workerID),
				zap.String("job_id", jobID.String()))
			if err := w.orchestrator.Run(ctx, jobID); err != nil {
				w.log.Error("job run failed",
					zap.Int("worker_id", workerID),
					zap.String("job_id", jobID.String()),
					zap.Error(err))
			}
		}
	}
}

func (w *worker) pollPendingJobs(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			pending, err := w.evalRepo.FindPendingJobs(10)
			if err != nil {
				w.log.Warn("failed to fetch pending jobs", zap.Error(err))
				continue
			}
			for _, job := range pending {
				w.EnqueueJob(job.ID)
			}
		}
	}
}
