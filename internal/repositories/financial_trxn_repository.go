package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cloverBack/internal/models"
)

type FinancialTrxnRepository struct {
	DB *sql.DB
}

// GetPayment returns a payment together with the contribution it pays.
func (r *FinancialTrxnRepository) GetPayment(ctx context.Context, paymentID int64) (models.FinancialTrxn, error) {
	var (
		t   models.FinancialTrxn
		ref sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `
SELECT ft.id, eft.contribution_id, COALESCE(ft.trxn_id, ''), ft.total_amount, ft.fee_amount, ft.currency,
	ft.payment_processor_id, ft.order_reference, ft.trxn_date, ft.status
FROM financial_trxn ft
JOIN entity_financial_trxn eft ON eft.financial_trxn_id = ft.id
WHERE ft.id = ?
LIMIT 1`, paymentID).Scan(&t.ID, &t.ContributionID, &t.TrxnID, &t.TotalAmount, &t.FeeAmount, &t.Currency,
		&t.PaymentProcessorID, &ref, &t.TrxnDate, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FinancialTrxn{}, models.ErrNoRecord
	}
	if err != nil {
		return models.FinancialTrxn{}, err
	}
	t.OrderReference = ref.String
	return t, nil
}

// RefundRecorded reports whether a refund with the same reference and amount
// already exists for the contribution.
func (r *FinancialTrxnRepository) RefundRecorded(ctx context.Context, contributionID int64, trxnID string, amount decimal.Decimal) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
SELECT COUNT(ft.id)
FROM financial_trxn ft
JOIN entity_financial_trxn eft ON eft.financial_trxn_id = ft.id
WHERE eft.contribution_id = ? AND ft.trxn_id = ? AND ft.total_amount = ?`,
		contributionID, trxnID, amount.Neg().StringFixed(2)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordRefund stores a negative payment and moves the contribution to the
// given status in one transaction.
func (r *FinancialTrxnRepository) RecordRefund(ctx context.Context, t models.FinancialTrxn, status models.ContributionStatus) (models.FinancialTrxn, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.FinancialTrxn{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO financial_trxn (trxn_id, total_amount, fee_amount, net_amount, currency, payment_processor_id, order_reference, trxn_date, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TrxnID, t.TotalAmount.StringFixed(2), t.FeeAmount.StringFixed(2), t.TotalAmount.Sub(t.FeeAmount).StringFixed(2),
		t.Currency, t.PaymentProcessorID, t.OrderReference, t.TrxnDate, t.Status)
	if err != nil {
		return models.FinancialTrxn{}, fmt.Errorf("insert refund: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.FinancialTrxn{}, err
	}
	t.ID = id

	if _, err := tx.ExecContext(ctx, `INSERT INTO entity_financial_trxn (contribution_id, financial_trxn_id, amount) VALUES (?, ?, ?)`,
		t.ContributionID, id, t.TotalAmount.StringFixed(2)); err != nil {
		return models.FinancialTrxn{}, fmt.Errorf("link refund: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE contribution SET contribution_status = ? WHERE id = ?`, string(status), t.ContributionID); err != nil {
		return models.FinancialTrxn{}, fmt.Errorf("update contribution status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.FinancialTrxn{}, err
	}
	return t, nil
}
