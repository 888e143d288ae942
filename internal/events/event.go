// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"recruitbase_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Ingestion Domain Events
// =============================================================================

// LeadEventReceived is published once a webhook lead event has been stored,
// before identity resolution runs.
type LeadEventReceived struct {
	BaseEvent
	ExternalLeadID string `json:"externalLeadId"`
	FormID         string `json:"formId"`
	PageID         string `json:"pageId"`
	Redelivery     bool   `json:"redelivery"`
}

func (e LeadEventReceived) EventName() string { return "ingestion.lead_event.received" }

// LeadLinked is published when a lead event is linked to a candidate,
// whether the candidate was matched or newly created.
type LeadLinked struct {
	BaseEvent
	ExternalLeadID string    `json:"externalLeadId"`
	CandidateID    uuid.UUID `json:"candidateId"`
	Created        bool      `json:"created"`
	MatchedBy      string    `json:"matchedBy,omitempty"`
}

func (e LeadLinked) EventName() string { return "ingestion.lead_event.linked" }

// CandidateCreated is published when identity resolution finds no existing
// candidate and a new record is created.
type CandidateCreated struct {
	BaseEvent
	CandidateID    uuid.UUID `json:"candidateId"`
	ExternalLeadID string    `json:"externalLeadId"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
}

func (e CandidateCreated) EventName() string { return "candidates.candidate.created" }

// LeadPendingReview is published when a lead event cannot be linked
// automatically and is parked for manual review.
type LeadPendingReview struct {
	BaseEvent
	ExternalLeadID string `json:"externalLeadId"`
	Reason         string `json:"reason"`
	Email          string `json:"email,omitempty"`
	FullName       string `json:"fullName,omitempty"`
}

func (e LeadPendingReview) EventName() string { return "ingestion.lead_event.pending_review" }

// LeadProcessingFailed is published when the pipeline fails after the event
// was stored. The stored event remains replayable.
type LeadProcessingFailed struct {
	BaseEvent
	ExternalLeadID string `json:"externalLeadId"`
	Stage          string `json:"stage"`
	ErrorMessage   string `json:"errorMessage"`
}

func (e LeadProcessingFailed) EventName() string { return "ingestion.lead_event.failed" }
