package tools

import "time"

// Meeting is one meeting record in a workspace database.
type Meeting struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	MeetingDate *time.Time `json:"meeting_date,omitempty"`
	Attendees   []string   `json:"attendees,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MeetingDetail embeds the decisions and actions linked to a meeting.
type MeetingDetail struct {
	Meeting
	Decisions []Decision `json:"decisions"`
	Actions   []Action   `json:"actions"`
}

// Action is one action item, optionally linked to a meeting.
type Action struct {
	ID          int64      `json:"id"`
	MeetingID   *int64     `json:"meeting_id,omitempty"`
	Description string     `json:"description"`
	Owner       string     `json:"owner,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Decision is one recorded decision, optionally linked to a meeting.
type Decision struct {
	ID          int64     `json:"id"`
	MeetingID   *int64    `json:"meeting_id,omitempty"`
	Description string    `json:"description"`
	DecidedBy   string    `json:"decided_by,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
