package scheduler

import (
	"context"
	"fmt"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/config"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	snapshots *Snapshotter
	log       *logger.Logger
}

// NewWorker builds the asynq server plus the periodic scheduler that enqueues
// a full snapshot refresh every configured interval.
func NewWorker(cfg config.SchedulerConfig, snapshots *Snapshotter, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := queueName(cfg)
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	sched := asynq.NewScheduler(opt, nil)
	if interval := cfg.GetMetricsSnapshotInterval(); interval > 0 {
		spec := fmt.Sprintf("@every %s", interval)
		if _, err := sched.Register(spec, NewMetricsSnapshotAllTask(), asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register snapshot schedule: %w", err)
		}
	}

	w := &Worker{
		server:    server,
		scheduler: sched,
		mux:       asynq.NewServeMux(),
		snapshots: snapshots,
		log:       log,
	}
	w.mux.HandleFunc(TaskMetricsSnapshotAll, w.handleSnapshotAll)
	w.mux.HandleFunc(TaskMetricsSnapshot, w.handleSnapshot)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.scheduler.Start(); err != nil {
		w.log.Error("snapshot scheduler failed to start", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleSnapshotAll(ctx context.Context, _ *asynq.Task) error {
	return w.snapshots.RefreshAll(ctx)
}

func (w *Worker) handleSnapshot(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMetricsSnapshotPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	pipelineID, err := uuid.Parse(payload.PipelineID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return w.snapshots.Refresh(ctx, tenantID, pipelineID)
}
