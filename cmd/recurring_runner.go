package main

import (
	"context"
	"log"
	"time"

	"cloverBack/internal/models"
)

type recurringJob interface {
	Run(ctx context.Context, params models.JobParams) (models.JobResult, error)
}

func startRecurringRunner(ctx context.Context, job recurringJob, interval, timeout time.Duration, infoLog, errorLog *log.Logger) {
	if job == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			res, err := job.Run(runCtx, models.JobParams{})
			cancel()
			if err != nil {
				if errorLog != nil {
					errorLog.Printf("recurring runner: run failed: %v", err)
				}
				return
			}
			if res.IsError && errorLog != nil {
				errorLog.Printf("recurring runner: %s", res.Message)
			} else if infoLog != nil {
				infoLog.Printf("recurring runner: %s", res.Message)
			}
		}

		runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}
