package models

import "time"

// LeadStatus is the funnel status of a lead. Only "new" is assigned here;
// later transitions belong to the funnel's owner.
type LeadStatus string

const LeadStatusNew LeadStatus = "new"

// Lead is an escalated case handed to the expert funnel.
type Lead struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Summary   CaseSummary  `json:"summary"`
	Contact   *ContactData `json:"contact,omitempty"`
	Status    LeadStatus   `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
