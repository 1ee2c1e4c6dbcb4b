package models

import "time"

// Activity is an audit entry attached to a contact.
type Activity struct {
	ID                int64     `json:"id"`
	ActivityType      string    `json:"activity_type"`
	SourceContactID   int64     `json:"source_contact_id"`
	SourceRecordID    int64     `json:"source_record_id"`
	AssigneeContactID int64     `json:"assignee_contact_id"`
	Subject           string    `json:"subject"`
	Status            string    `json:"status"`
	ActivityDateTime  time.Time `json:"activity_date_time"`
}
