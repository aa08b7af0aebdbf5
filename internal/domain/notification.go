package domain

// Notification announces a newly written daily report.
type Notification struct {
	RunID  string       `json:"run_id"`
	Date   CalendarDate `json:"date"`
	Report DailyReport  `json:"report"`
	Check  Snapshot     `json:"check"`
}
