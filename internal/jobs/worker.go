package jobs

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"memos/internal/notify"
)

// Worker drains the notification outbox. Delivery failures retry with
// exponential backoff and never touch the transition that enqueued
// the job.
type Worker struct {
	ID       string
	Repo     *Repo
	Notifier notify.Notifier
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.Repo.Claim(w.ID)
			if err != nil {
				log.Printf("worker claim error: %v", err)
				continue
			}
			if job == nil {
				continue
			}
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeEmailDispatch:
		w.handleEmail(ctx, job)
	default:
		_ = w.Repo.MarkFailed(job.ID, "unknown job type")
	}
}

func (w *Worker) handleEmail(ctx context.Context, job *Job) {
	var msg notify.Message
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		_ = w.Repo.MarkFailed(job.ID, "bad payload")
		return
	}
	if err := w.Notifier.Send(ctx, msg); err != nil {
		log.Printf("notify failed: %v", err)
		w.retry(job, err.Error())
		return
	}
	_ = w.Repo.MarkDone(job.ID)
}

func (w *Worker) retry(job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Repo.MarkFailed(job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := time.Now().Add(time.Duration(sec) * time.Second)

	_ = w.Repo.RetryLater(job.ID, attempts, next, errMsg)
}
