package models

// JobParams are the recurring job invocation parameters.
type JobParams struct {
	RecurID          int64 `json:"recur_id"`
	CycleDay         int   `json:"cycle_day"`
	FailureCount     *int  `json:"failure_count"`
	Catchup          bool  `json:"catchup"`
	IgnoreMembership bool  `json:"ignoremembership"`
}

// JobResult summarises one run of the recurring job.
type JobResult struct {
	Processed  int      `json:"processed"`
	ErrorCount int      `json:"error_count"`
	IsError    bool     `json:"is_error"`
	Message    string   `json:"message"`
	Log        []string `json:"log,omitempty"`
}
