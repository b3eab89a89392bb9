package domain

import "time"

// House is a tenant account. PasswordHash never leaves the server.
type House struct {
	ID           string    `json:"id"`
	HouseID      string    `json:"house_id"`
	Name         *string   `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuestionSet is a reusable survey template with its notification content.
type QuestionSet struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description"`
	NotificationTitle string     `json:"notification_title"`
	NotificationBody  string     `json:"notification_body"`
	NotificationURL   *string    `json:"notification_url"`
	ExpiresAt         *time.Time `json:"expires_at"`
	IsDismissable     bool       `json:"is_dismissable"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Questions         []Question `json:"questions,omitempty"`
}

// Expired reports whether the set has an expiry at or before now.
func (qs QuestionSet) Expired(now time.Time) bool {
	return qs.ExpiresAt != nil && !qs.ExpiresAt.After(now)
}

// QuestionSetSummary is a list row with aggregate counts.
type QuestionSetSummary struct {
	QuestionSet
	QuestionCount   int `json:"question_count"`
	AssignmentCount int `json:"assignment_count"`
}

// QuestionSetPatch holds a partial update. Nil fields keep their stored value,
// except ExpiresAt which is always written (nil clears the expiry).
type QuestionSetPatch struct {
	Title             *string
	Description       *string
	NotificationTitle *string
	NotificationBody  *string
	NotificationURL   *string
	ExpiresAt         *time.Time
	IsDismissable     *bool
	IsActive          *bool
}

// Apply returns qs with the patch applied.
func (p QuestionSetPatch) Apply(qs QuestionSet) QuestionSet {
	if p.Title != nil {
		qs.Title = *p.Title
	}
	if p.Description != nil {
		qs.Description = p.Description
	}
	if p.NotificationTitle != nil {
		qs.NotificationTitle = *p.NotificationTitle
	}
	if p.NotificationBody != nil {
		qs.NotificationBody = *p.NotificationBody
	}
	if p.NotificationURL != nil {
		qs.NotificationURL = p.NotificationURL
	}
	qs.ExpiresAt = p.ExpiresAt
	if p.IsDismissable != nil {
		qs.IsDismissable = *p.IsDismissable
	}
	if p.IsActive != nil {
		qs.IsActive = *p.IsActive
	}
	return qs
}

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	StatusPending   AssignmentStatus = "pending"
	StatusCompleted AssignmentStatus = "completed"
	StatusDismissed AssignmentStatus = "dismissed"
)

// CanTransition reports whether s may move to next. Only pending is non-terminal.
func (s AssignmentStatus) CanTransition(next AssignmentStatus) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusDismissed)
}

// Assignment links one question set to one house.
type Assignment struct {
	ID                 string           `json:"id"`
	QuestionSetID      string           `json:"question_set_id"`
	HouseID            string           `json:"house_id"`
	Status             AssignmentStatus `json:"status"`
	NotificationSentAt *time.Time       `json:"notification_sent_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	CreatedAt          time.Time        `json:"created_at"`
}

// PendingSurvey is the tenant-facing row of an open assignment.
type PendingSurvey struct {
	AssignmentID       string           `json:"assignment_id"`
	Status             AssignmentStatus `json:"status"`
	NotificationSentAt *time.Time       `json:"notification_sent_at"`
	AssignedAt         time.Time        `json:"assigned_at"`
	QuestionSetID      string           `json:"question_set_id"`
	Title              string           `json:"title"`
	Description        *string          `json:"description"`
	IsDismissable      bool             `json:"is_dismissable"`
	ExpiresAt          *time.Time       `json:"expires_at"`
}

// AssignmentDetail is an assignment joined with the parts of its question set
// a tenant needs to answer it.
type AssignmentDetail struct {
	Assignment
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	IsDismissable bool       `json:"is_dismissable"`
	Questions     []Question `json:"questions"`
}

// Answer is one submitted value for one question.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

// Response is a stored answer, unique per (assignment, question).
type Response struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	QuestionID   string    `json:"question_id"`
	Value        string    `json:"response_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// SendResult is what the orchestrator reports after sending a survey.
type SendResult struct {
	AssignmentsCreated  int `json:"assignmentsCreated"`
	NotificationsSent   int `json:"notificationsSent"`
	NotificationsFailed int `json:"notificationsFailed"`
}
