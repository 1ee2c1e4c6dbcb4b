package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloverBack/internal/models"
)

type PaymentTokenRepository struct {
	DB *sql.DB
}

// CountSaved counts vault tokens with the given value that are linked to the
// series and belong to the processor.
func (r *PaymentTokenRepository) CountSaved(ctx context.Context, processorID int64, token string, seriesID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
SELECT COUNT(t.id)
FROM payment_token t
JOIN contribution_recur r ON r.payment_token_id = t.id
WHERE t.payment_processor_id = ? AND t.token = ? AND r.id = ?`, processorID, token, seriesID).Scan(&n)
	return n, err
}

func (r *PaymentTokenRepository) Create(ctx context.Context, t models.PaymentToken) (models.PaymentToken, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := r.DB.ExecContext(ctx, `
INSERT INTO payment_token (contact_id, payment_processor_id, token, expiry_date, masked_account_number, created_date)
VALUES (?, ?, ?, ?, ?, ?)`,
		t.ContactID, t.PaymentProcessorID, t.Token, nullTime(t.Expiry), t.MaskedAccount, t.CreatedAt)
	if err != nil {
		return models.PaymentToken{}, fmt.Errorf("insert payment token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PaymentToken{}, err
	}
	t.ID = id
	return t, nil
}
