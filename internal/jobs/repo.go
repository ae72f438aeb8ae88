package jobs

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"memos/internal/notify"
)

type Repo struct {
	DB *gorm.DB
}

// EnqueueEmail adds a dispatch job on the caller's transaction handle,
// so the outbox row commits or rolls back with the state transition.
func EnqueueEmail(tx *gorm.DB, msg notify.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	j := Job{
		Type:        TypeEmailDispatch,
		Payload:     payload,
		RunAt:       now,
		Status:      "PENDING",
		MaxAttempts: 8,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.Create(&j).Error
}

// Claim one due job atomically using SKIP LOCKED. Postgres only; the
// worker never runs against the test database.
func (r *Repo) Claim(workerID string) (*Job, error) {
	var job Job
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		// requeue jobs stuck RUNNING after a worker crash
		tx.Exec(`
update jobs
set status='PENDING', locked_by=null, locked_at=null, updated_at=now()
where status='RUNNING' and locked_at is not null and locked_at < now() - interval '5 minutes'
`)

		q := tx.Raw(`
with cte as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, workerID)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(id uint64) error {
	return r.DB.Exec(`update jobs set status='DONE', updated_at=now() where id=?`, id).Error
}

func (r *Repo) MarkFailed(id uint64, errMsg string) error {
	return r.DB.Exec(`update jobs set status='FAILED', last_error=?, updated_at=now() where id=?`, errMsg, id).Error
}

func (r *Repo) RetryLater(id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.Exec(`
update jobs
set status='PENDING',
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, attempts, runAt, errMsg, id).Error
}
