package scheduler

import (
	"context"
	"fmt"

	"recruitbase_backend/platform/config"
	"recruitbase_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ReplayProcessor re-runs resolution and merge for a stored lead event.
// Satisfied by the ingestion service.
type ReplayProcessor interface {
	Reprocess(ctx context.Context, externalLeadID string) error
}

// Worker consumes lead replay tasks.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor ReplayProcessor
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor ReplayProcessor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

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

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskLeadReplay, w.handleLeadReplay)

	return w, nil
}

func (w *Worker) handleLeadReplay(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadReplayPayload(task)
	if err != nil {
		return err
	}

	w.log.Info("replaying lead event", "external_lead_id", payload.ExternalLeadID)
	return w.processor.Reprocess(ctx, payload.ExternalLeadID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
