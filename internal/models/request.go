package models

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps "" to medium; ok is false for unknown values.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case "":
		return PriorityMedium, true
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), true
	}
	return "", false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusNotified   Status = "notified"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var Statuses = []Status{StatusPending, StatusNotified, StatusInProgress, StatusCompleted}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type MaintenanceRequest struct {
	ID               int64     `db:"id" json:"id"`
	UserID           int64     `db:"user_id" json:"user_id"`
	BuildingName     string    `db:"building_name" json:"building_name"`
	RoomNumber       string    `db:"room_number" json:"room_number"`
	Priority         Priority  `db:"priority" json:"priority"`
	IssueDescription string    `db:"issue_description" json:"issue_description"`
	Photo            []byte    `db:"photo" json:"photo,omitempty"`
	PhotoMIME        string    `db:"photo_mime" json:"photo_mime,omitempty"`
	Status           Status    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RequestWithOwner is the admin listing row.
type RequestWithOwner struct {
	MaintenanceRequest
	UserName string `db:"user_name" json:"user_name"`
}

// PendingRequest is what the dispatcher needs to build a message.
type PendingRequest struct {
	MaintenanceRequest
	OwnerName  string `db:"name"`
	OwnerPhone string `db:"phone"`
}
