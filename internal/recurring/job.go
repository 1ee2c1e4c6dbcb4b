package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloverBack/internal/models"
)

const (
	msgLockBusy     = "Failed to acquire lock. No contribution records were processed."
	msgWithErrors   = "Completed, but with %d errors. %d records processed."
	msgProcessed    = "%d contribution record(s) were processed."
	msgNoneToDo     = "No contribution records were processed."
	lockReleaseWait = 5 * time.Second
)

// Job is one invocation of the recurring charge batch.
type Job struct {
	locker      Locker
	processors  ProcessorStore
	housekeeper *Housekeeper
	selector    *Selector
	executor    *Executor
	logger      *slog.Logger
	now         func() time.Time
	lockName    string
}

func NewJob(d Deps, cfg Config) (*Job, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Job{
		locker:      d.Locker,
		processors:  d.Processors,
		housekeeper: NewHousekeeper(d.Series, d.Logger),
		selector:    NewSelector(d.Series, cfg.FailureCeiling),
		executor:    NewExecutor(d, cfg),
		logger:      d.Logger.With("job", "recurring"),
		now:         d.Now,
		lockName:    cfg.LockName,
	}, nil
}

// Executor exposes the payment executor for interactive first payments.
func (j *Job) Executor() *Executor { return j.executor }

// Run processes every due installment once. A busy lock is not an error.
func (j *Job) Run(ctx context.Context, params models.JobParams) (models.JobResult, error) {
	ok, err := j.locker.Acquire(ctx, j.lockName)
	if err != nil {
		return models.JobResult{IsError: true, Message: msgLockBusy}, fmt.Errorf("acquire %s: %w", j.lockName, err)
	}
	if !ok {
		j.logger.Info("lock busy, skipping run", "lock", j.lockName)
		return models.JobResult{Message: msgLockBusy}, nil
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseWait)
		defer cancel()
		if err := j.locker.Release(rctx, j.lockName); err != nil {
			j.logger.Error("lock release failed", "lock", j.lockName, "err", err)
		}
	}()

	return j.run(ctx, params)
}

func (j *Job) run(ctx context.Context, params models.JobParams) (models.JobResult, error) {
	var result models.JobResult

	processorIDs, err := j.processors.IDsByClass(ctx, models.CloverClassName)
	if err != nil {
		result.IsError = true
		result.Message = err.Error()
		return result, fmt.Errorf("list processors: %w", err)
	}
	if len(processorIDs) == 0 {
		result.Message = msgNoneToDo
		return result, nil
	}

	now := j.now()
	if _, err := j.housekeeper.PrePass(ctx, processorIDs, now); err != nil {
		j.logger.Error("housekeeping before run", "err", err)
		result.Log = append(result.Log, err.Error())
	}

	due, err := j.selector.Due(ctx, params, processorIDs, now)
	if err != nil {
		result.IsError = true
		result.Message = err.Error()
		return result, fmt.Errorf("select due series: %w", err)
	}
	j.logger.Info("due series selected", "count", len(due))

	for _, s := range due {
		if err := ctx.Err(); err != nil {
			j.logger.Warn("run interrupted", "err", err, "remaining", len(due)-result.Processed)
			break
		}

		res, err := j.executor.ProcessSeries(ctx, s, params, now)
		result.Processed++
		result.Log = append(result.Log, res.Log...)
		if res.ActivityFailed {
			result.ErrorCount++
		}
		if err != nil {
			result.ErrorCount++
			result.Log = append(result.Log, fmt.Sprintf("Contact id %d: %v", s.ContactID, err))
			j.logger.Error("series processing failed", "series_id", s.ID, "err", err)
			continue
		}
		if !res.Outcome.OK() {
			result.ErrorCount++
		}
	}

	if _, err := j.housekeeper.PostPass(context.WithoutCancel(ctx), processorIDs, j.now()); err != nil {
		j.logger.Error("housekeeping after run", "err", err)
		result.Log = append(result.Log, err.Error())
	}

	switch {
	case result.ErrorCount > 0:
		result.IsError = true
		result.Message = fmt.Sprintf(msgWithErrors, result.ErrorCount, result.Processed)
	case result.Processed > 0:
		result.Message = fmt.Sprintf(msgProcessed, result.Processed)
	default:
		result.Message = msgNoneToDo
	}
	return result, nil
}
