// Package candidates provides the candidate bounded context: the canonical
// person records that lead events resolve against, and the transactional
// merge/create logic that keeps them consistent under concurrent deliveries.
package candidates

import (
	"time"

	"github.com/google/uuid"
)

// ContactSourceLeadIngestion marks contact entries appended by the lead
// ingestion pipeline.
const ContactSourceLeadIngestion = "lead-ingestion"

// ContactEntry is one provenance-tagged contact point attached to a candidate.
// Entries accumulate over time; the candidate's top-level email and phone are
// the primary values, the contacts array preserves every variant seen.
type ContactEntry struct {
	Email    *string   `json:"email,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
	Source   string    `json:"source"`
	Verified bool      `json:"verified"`
	AddedAt  time.Time `json:"addedAt"`
}

// Candidate is the canonical person record.
type Candidate struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     *string
	Phone     *string
	Country   *string
	Contacts  []ContactEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MergeParams carries the normalized identity of one lead event into the
// merge/create transaction.
type MergeParams struct {
	ExternalLeadID string
	FirstName      string
	LastName       string
	Email          *string
	Phone          *string
	Country        *string
}

// Match labels for MergeOutcome.MatchedBy.
const (
	MatchedByPhone        = "phone"
	MatchedByEmail        = "email"
	MatchedByContactEmail = "contact-email"
	MatchedByManual       = "manual"
)

// MergeOutcome reports what the merge transaction did with a lead event.
type MergeOutcome struct {
	// CandidateID is set when the event was linked to a candidate.
	CandidateID *uuid.UUID
	// Created is true when a new candidate was inserted.
	Created bool
	// MatchedBy names the strategy that found an existing candidate.
	MatchedBy string
	// Pending is true when the event was parked for manual review instead
	// of being linked.
	Pending bool
	// PendingReason explains why the event is pending.
	PendingReason string
}
