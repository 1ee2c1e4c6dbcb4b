package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cloverBack/internal/models"
)

type ContributionRepository struct {
	DB *sql.DB
}

const contributionColumns = `id, contact_id, contribution_recur_id, total_amount, net_amount, currency, receive_date,
	contribution_status, invoice_id, COALESCE(trxn_id, ''), COALESCE(pan_truncation, ''), COALESCE(trxn_result_code, ''),
	COALESCE(source, ''), campaign_id, COALESCE(amount_level, ''), tax_amount, payment_instrument_id,
	financial_type_id, payment_processor_id, is_test`

func scanContribution(scanner interface{ Scan(dest ...any) error }) (models.Contribution, error) {
	var (
		c        models.Contribution
		recurID  sql.NullInt64
		campaign sql.NullInt64
		status   string
	)
	err := scanner.Scan(&c.ID, &c.ContactID, &recurID, &c.Amount, &c.NetAmount, &c.Currency, &c.ReceiveDate,
		&status, &c.InvoiceID, &c.TrxnID, &c.PanTruncation, &c.ResultCode,
		&c.Source, &campaign, &c.AmountLevel, &c.TaxAmount, &c.PaymentInstrumentID,
		&c.FinancialTypeID, &c.PaymentProcessorID, &c.IsTest)
	if err != nil {
		return models.Contribution{}, err
	}
	c.Status = models.ContributionStatus(status)
	if recurID.Valid {
		id := recurID.Int64
		c.RecurID = &id
	}
	if campaign.Valid {
		id := campaign.Int64
		c.CampaignID = &id
	}
	return c, nil
}

func (r *ContributionRepository) Get(ctx context.Context, id int64) (models.Contribution, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contribution WHERE id = ?`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contribution{}, models.ErrNoRecord
	}
	return c, err
}

// Latest returns the most recent installment of a series. When amount is
// set only installments of that amount are considered; when isTest is set
// only installments with that test flag.
func (r *ContributionRepository) Latest(ctx context.Context, recurID int64, amount *decimal.Decimal, isTest *bool) (models.Contribution, error) {
	q := `SELECT ` + contributionColumns + ` FROM contribution WHERE contribution_recur_id = ?`
	args := []any{recurID}
	if isTest != nil {
		q += ` AND is_test = ?`
		args = append(args, *isTest)
	}
	if amount != nil {
		q += ` AND total_amount = ?`
		args = append(args, amount.StringFixed(2))
	}
	q += ` ORDER BY receive_date DESC, id DESC LIMIT 1`

	c, err := scanContribution(r.DB.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contribution{}, models.ErrNoRecord
	}
	return c, err
}

func (r *ContributionRepository) Create(ctx context.Context, c models.Contribution) (models.Contribution, error) {
	res, err := r.DB.ExecContext(ctx, `
INSERT INTO contribution (contact_id, contribution_recur_id, total_amount, net_amount, currency, receive_date,
	contribution_status, invoice_id, source, campaign_id, amount_level, tax_amount, payment_instrument_id,
	financial_type_id, payment_processor_id, is_test)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContactID, nullInt64(c.RecurID), c.Amount.StringFixed(2), c.NetAmount.StringFixed(2), c.Currency, c.ReceiveDate,
		string(c.Status), c.InvoiceID, c.Source, nullInt64(c.CampaignID), c.AmountLevel, c.TaxAmount, c.PaymentInstrumentID,
		c.FinancialTypeID, c.PaymentProcessorID, c.IsTest)
	if err != nil {
		return models.Contribution{}, fmt.Errorf("insert contribution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Contribution{}, err
	}
	c.ID = id
	return c, nil
}

// Finalize writes the classified gateway outcome onto a pending contribution.
// Only pending rows are touched so a replayed result cannot overwrite a
// settled one.
func (r *ContributionRepository) Finalize(ctx context.Context, id int64, res models.ContributionResult) error {
	out, err := r.DB.ExecContext(ctx, `
UPDATE contribution
SET contribution_status = ?, trxn_id = NULLIF(?, ''), pan_truncation = NULLIF(?, ''),
	trxn_result_code = NULLIF(?, ''), result_message = NULLIF(?, '')
WHERE id = ? AND contribution_status = ?`,
		string(res.Status), res.TrxnID, res.PanTruncation, res.ResultCode, res.Message,
		id, string(models.ContributionPending))
	if err != nil {
		return fmt.Errorf("finalize contribution %d: %w", id, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNoRecord
	}
	return nil
}

func (r *ContributionRepository) SetStatus(ctx context.Context, id int64, status models.ContributionStatus) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE contribution SET contribution_status = ? WHERE id = ?`, string(status), id)
	return err
}
