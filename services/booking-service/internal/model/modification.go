package model

import "time"

type ModificationStatus string

const (
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationRejected ModificationStatus = "rejected"
)

// SlotChoice is one side of a modification diff.
type SlotChoice struct {
	TemplateID string
	SlotID     string
	Date       string
	Time       string
	GuestCount int
}

type ModificationRequest struct {
	ID             string
	BookingID      string
	Original       SlotChoice
	Requested      SlotChoice
	Status         ModificationStatus
	RequestedBy    string
	Source         Source
	DecidedBy      string
	DecisionReason string
	CreatedAt      time.Time
	DecidedAt      *time.Time
}

func (m ModificationRequest) Pending() bool {
	return m.Status == ModificationPending
}
