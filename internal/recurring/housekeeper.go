package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloverBack/internal/models"
	"cloverBack/internal/timeutil"
)

// Housekeeper keeps end dates and statuses of limited series consistent with
// the number of installments already collected.
type Housekeeper struct {
	series SeriesStore
	logger *slog.Logger
}

func NewHousekeeper(series SeriesStore, logger *slog.Logger) *Housekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Housekeeper{series: series, logger: logger}
}

// PrePass reopens series that still owe installments and stamps an end date
// on series that are finished but not yet marked so.
func (h *Housekeeper) PrePass(ctx context.Context, processorIDs []int64, now time.Time) (int, error) {
	progress, err := h.series.ListProgress(ctx, []models.RecurStatus{models.RecurInProgress, models.RecurCompleted}, processorIDs)
	if err != nil {
		return 0, fmt.Errorf("housekeeping dates: %w", err)
	}

	var (
		changed int
		errs    []error
	)
	for _, p := range progress {
		var u models.SeriesUpdate
		if p.InstallmentsDone < p.Installments {
			endPassed := p.EndDate != nil && !p.EndDate.After(now)
			if !endPassed && p.Status != models.RecurCompleted {
				continue
			}
			st := models.RecurInProgress
			u.Status = &st
			u.ClearEndDate = endPassed
		} else {
			if p.EndDate != nil && !p.EndDate.After(now) {
				continue
			}
			end := now.Add(-time.Hour)
			u.EndDate = &end
		}

		if err := h.series.Update(ctx, p.ID, u); err != nil {
			errs = append(errs, fmt.Errorf("series %d: %w", p.ID, err))
			continue
		}
		changed++
		h.logger.Info("housekeeping adjusted series", "series_id", p.ID, "done", p.InstallmentsDone, "installments", p.Installments)
	}
	return changed, errors.Join(errs...)
}

// PostPass marks series whose installments are all collected as Completed.
func (h *Housekeeper) PostPass(ctx context.Context, processorIDs []int64, now time.Time) (int, error) {
	progress, err := h.series.ListProgress(ctx, []models.RecurStatus{models.RecurInProgress}, processorIDs)
	if err != nil {
		return 0, fmt.Errorf("housekeeping status: %w", err)
	}

	var (
		changed int
		errs    []error
	)
	for _, p := range progress {
		if p.InstallmentsDone < p.Installments {
			continue
		}
		st := models.RecurCompleted
		end := timeutil.StartOfDay(now)
		if err := h.series.Update(ctx, p.ID, models.SeriesUpdate{Status: &st, EndDate: &end}); err != nil {
			errs = append(errs, fmt.Errorf("series %d: %w", p.ID, err))
			continue
		}
		changed++
		h.logger.Info("series completed", "series_id", p.ID, "installments", p.Installments)
	}
	return changed, errors.Join(errs...)
}
