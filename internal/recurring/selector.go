package recurring

import (
	"context"
	"time"

	"cloverBack/internal/models"
	"cloverBack/internal/timeutil"
)

// Selector finds the series with an installment due today.
type Selector struct {
	series  SeriesStore
	ceiling int
}

func NewSelector(series SeriesStore, failureCeiling int) *Selector {
	return &Selector{series: series, ceiling: failureCeiling}
}

// Due returns one entry per series whose next date falls on or before the end
// of now's day. Passing failure_count caps the failure count at the ceiling;
// its value is not used.
func (s *Selector) Due(ctx context.Context, params models.JobParams, processorIDs []int64, now time.Time) ([]models.RecurringSeries, error) {
	f := models.DueFilter{
		Statuses:     []models.RecurStatus{models.RecurInProgress, models.RecurPending},
		ProcessorIDs: processorIDs,
		DueBy:        timeutil.EndOfDay(now),
		CycleDay:     params.CycleDay,
	}
	if params.FailureCount != nil {
		ceiling := s.ceiling
		f.MaxFailureCount = &ceiling
	}
	return s.series.ListDue(ctx, f)
}

// ReceiveDate is the nominal date of the installment charged for series.
func ReceiveDate(series models.RecurringSeries, params models.JobParams, now time.Time) time.Time {
	if params.Catchup && !series.NextScheduledDate.IsZero() {
		return series.NextScheduledDate
	}
	return now
}
