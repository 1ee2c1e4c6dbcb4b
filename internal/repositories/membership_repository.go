package repositories

import (
	"context"
	"database/sql"
	"errors"

	"cloverBack/internal/models"
)

type MembershipRepository struct {
	DB *sql.DB
}

// ForContribution returns the membership paid by a contribution.
func (r *MembershipRepository) ForContribution(ctx context.Context, contributionID int64) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT membership_id FROM membership_payment WHERE contribution_id = ? ORDER BY id DESC LIMIT 1`, contributionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNoRecord
	}
	return id, err
}

func (r *MembershipRepository) LinkPayment(ctx context.Context, membershipID, contributionID int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT IGNORE INTO membership_payment (membership_id, contribution_id) VALUES (?, ?)`, membershipID, contributionID)
	return err
}

// CancelForContribution cancels every membership paid by the contribution and
// returns how many changed.
func (r *MembershipRepository) CancelForContribution(ctx context.Context, contributionID int64) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
UPDATE membership m
JOIN membership_payment mp ON mp.membership_id = m.id
SET m.status = 'Cancelled'
WHERE mp.contribution_id = ? AND m.status <> 'Cancelled'`, contributionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type ParticipantRepository struct {
	DB *sql.DB
}

func (r *ParticipantRepository) CancelForContribution(ctx context.Context, contributionID int64) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
UPDATE participant p
JOIN participant_payment pp ON pp.participant_id = p.id
SET p.status = 'Cancelled'
WHERE pp.contribution_id = ? AND p.status <> 'Cancelled'`, contributionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
