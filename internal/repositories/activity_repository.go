package repositories

import (
	"context"
	"database/sql"

	"cloverBack/internal/models"
)

type ActivityRepository struct {
	DB *sql.DB
}

func (r *ActivityRepository) Create(ctx context.Context, a models.Activity) (models.Activity, error) {
	res, err := r.DB.ExecContext(ctx, `
INSERT INTO activity (activity_type, source_contact_id, source_record_id, assignee_contact_id, subject, status, activity_date_time)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ActivityType, a.SourceContactID, a.SourceRecordID, a.AssigneeContactID, a.Subject, a.Status, a.ActivityDateTime)
	if err != nil {
		return models.Activity{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Activity{}, err
	}
	a.ID = id
	return a, nil
}
