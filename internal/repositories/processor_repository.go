package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cloverBack/internal/models"
)

type ProcessorRepository struct {
	DB *sql.DB
}

// IDsByClass lists active processor ids of a class, live and test alike.
func (r *ProcessorRepository) IDsByClass(ctx context.Context, className string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM payment_processor WHERE class_name = ? AND is_active = 1 ORDER BY id`, className)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ProcessorRepository) Get(ctx context.Context, id int64) (models.PaymentProcessor, error) {
	var p models.PaymentProcessor
	err := r.DB.QueryRowContext(ctx, `
SELECT id, name, class_name, COALESCE(user_name, ''), COALESCE(password, ''), COALESCE(signature, ''),
	COALESCE(url_api, ''), is_test, is_active
FROM payment_processor WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.ClassName, &p.UserName, &p.Password, &p.Signature, &p.URLAPI, &p.IsTest, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentProcessor{}, models.ErrNoRecord
	}
	if err != nil {
		return models.PaymentProcessor{}, err
	}
	p.URLAPI = strings.TrimSpace(p.URLAPI)
	return p, nil
}

type SettingsRepository struct {
	DB *sql.DB
}

// DefaultCurrency returns the site default currency, or fallback when unset.
func (r *SettingsRepository) DefaultCurrency(ctx context.Context, fallback string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM setting WHERE name = 'defaultCurrency'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && strings.TrimSpace(v) == "") {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(v)), nil
}
