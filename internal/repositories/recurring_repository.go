package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloverBack/internal/models"
)

type RecurringRepository struct {
	DB *sql.DB
}

const seriesColumns = `r.id, r.contact_id, r.amount, r.currency, r.frequency_interval, r.frequency_unit,
	r.next_sched_contribution_date, r.failure_count, r.installments, r.contribution_status, r.end_date,
	r.payment_token_id, COALESCE(t.token, ''), r.payment_processor_id, r.payment_instrument_id,
	r.financial_type_id, r.cycle_day, r.is_test`

func scanSeries(scanner interface{ Scan(dest ...any) error }) (models.RecurringSeries, error) {
	var (
		s       models.RecurringSeries
		status  string
		endDate sql.NullTime
		tokenID sql.NullInt64
	)
	err := scanner.Scan(&s.ID, &s.ContactID, &s.Amount, &s.Currency, &s.FrequencyInterval, &s.FrequencyUnit,
		&s.NextScheduledDate, &s.FailureCount, &s.Installments, &status, &endDate,
		&tokenID, &s.Token, &s.PaymentProcessorID, &s.PaymentInstrumentID,
		&s.FinancialTypeID, &s.CycleDay, &s.IsTest)
	if err != nil {
		return models.RecurringSeries{}, err
	}
	s.Status = models.RecurStatus(status)
	if endDate.Valid {
		t := endDate.Time
		s.EndDate = &t
	}
	if tokenID.Valid {
		id := tokenID.Int64
		s.PaymentTokenID = &id
	}
	return s, nil
}

func (r *RecurringRepository) Get(ctx context.Context, id int64) (models.RecurringSeries, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+seriesColumns+`
FROM contribution_recur r LEFT JOIN payment_token t ON t.id = r.payment_token_id
WHERE r.id = ?`, id)
	s, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecurringSeries{}, models.ErrNoRecord
	}
	return s, err
}

// ListDue returns the series matching the filter, one row per series.
func (r *RecurringRepository) ListDue(ctx context.Context, f models.DueFilter) ([]models.RecurringSeries, error) {
	if len(f.ProcessorIDs) == 0 || len(f.Statuses) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	where = append(where, "r.contribution_status IN ("+placeholders(len(f.Statuses))+")")
	for _, st := range f.Statuses {
		args = append(args, string(st))
	}
	where = append(where, "r.payment_processor_id IN ("+placeholders(len(f.ProcessorIDs))+")")
	for _, id := range f.ProcessorIDs {
		args = append(args, id)
	}
	where = append(where, "r.next_sched_contribution_date <= ?")
	args = append(args, f.DueBy)
	if f.CycleDay > 0 {
		where = append(where, "r.cycle_day = ?")
		args = append(args, f.CycleDay)
	}
	if f.MaxFailureCount != nil {
		where = append(where, "r.failure_count <= ?")
		args = append(args, *f.MaxFailureCount)
	}

	q := `SELECT ` + seriesColumns + `
FROM contribution_recur r LEFT JOIN payment_token t ON t.id = r.payment_token_id
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY r.id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RecurringSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update writes the non-nil fields of u.
func (r *RecurringRepository) Update(ctx context.Context, id int64, u models.SeriesUpdate) error {
	var (
		sets []string
		args []any
	)
	if u.NextScheduledDate != nil {
		sets = append(sets, "next_sched_contribution_date = ?")
		args = append(args, *u.NextScheduledDate)
	}
	if u.FailureCount != nil {
		sets = append(sets, "failure_count = ?")
		args = append(args, *u.FailureCount)
	}
	if u.Status != nil {
		sets = append(sets, "contribution_status = ?")
		args = append(args, string(*u.Status))
	}
	switch {
	case u.ClearEndDate:
		sets = append(sets, "end_date = NULL")
	case u.EndDate != nil:
		sets = append(sets, "end_date = ?")
		args = append(args, *u.EndDate)
	}
	if u.PaymentTokenID != nil {
		sets = append(sets, "payment_token_id = ?")
		args = append(args, *u.PaymentTokenID)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "modified_date = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx, `UPDATE contribution_recur SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update series %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNoRecord
	}
	return nil
}

// ListProgress returns installment progress for non-open-ended series in the
// given statuses, restricted to the given processors.
func (r *RecurringRepository) ListProgress(ctx context.Context, statuses []models.RecurStatus, processorIDs []int64) ([]models.SeriesProgress, error) {
	if len(statuses) == 0 || len(processorIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+len(processorIDs)+1)
	args = append(args, string(models.ContributionCompleted))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	for _, id := range processorIDs {
		args = append(args, id)
	}

	q := `SELECT r.id, r.installments, COUNT(c.id), r.contribution_status, r.end_date
FROM contribution_recur r
LEFT JOIN contribution c ON c.contribution_recur_id = r.id AND c.contribution_status = ?
WHERE r.installments > 0
  AND r.contribution_status IN (` + placeholders(len(statuses)) + `)
  AND r.payment_processor_id IN (` + placeholders(len(processorIDs)) + `)
GROUP BY r.id, r.installments, r.contribution_status, r.end_date`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SeriesProgress
	for rows.Next() {
		var (
			p       models.SeriesProgress
			status  string
			endDate sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Installments, &p.InstallmentsDone, &status, &endDate); err != nil {
			return nil, err
		}
		p.Status = models.RecurStatus(status)
		if endDate.Valid {
			t := endDate.Time
			p.EndDate = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
