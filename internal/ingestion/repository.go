// Package ingestion provides the lead-ingestion bounded context. It receives
// webhook lead deliveries, normalizes them, stores them idempotently, and
// resolves them against the candidate directory.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadEventNotFound = errors.New("lead event not found")

// Link statuses for a stored lead event.
const (
	LinkStatusUnlinked = "unlinked"
	LinkStatusPending  = "pending"
	LinkStatusLinked   = "linked"
)

// LeadEvent is one persisted webhook lead delivery, keyed by the provider's
// external lead identifier.
type LeadEvent struct {
	ID             uuid.UUID
	ExternalLeadID string
	FormID         string
	AdID           string
	PageID         string
	RawPayload     []byte
	CandidateID    *uuid.UUID
	LinkStatus     string
	LinkNote       *string
	ReceivedAt     time.Time
	ProcessedAt    time.Time
}

// Repository provides data access for lead events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ingestion repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadEventColumns = `id, external_lead_id, form_id, ad_id, page_id, raw_payload, candidate_id, link_status, link_note, received_at, processed_at`

// Upsert stores a lead event. A first delivery inserts the row unlinked; a
// redelivery replaces only the raw payload and refreshes processed_at, so an
// existing link survives redeliveries untouched.
func (r *Repository) Upsert(ctx context.Context, externalLeadID, formID, adID, pageID string, rawPayload []byte) (LeadEvent, error) {
	var event LeadEvent
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_events (external_lead_id, form_id, ad_id, page_id, raw_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_lead_id) DO UPDATE
		SET raw_payload = EXCLUDED.raw_payload, processed_at = now()
		RETURNING `+leadEventColumns+`
	`, externalLeadID, formID, adID, pageID, rawPayload).Scan(
		&event.ID, &event.ExternalLeadID, &event.FormID, &event.AdID, &event.PageID,
		&event.RawPayload, &event.CandidateID, &event.LinkStatus, &event.LinkNote,
		&event.ReceivedAt, &event.ProcessedAt,
	)
	return event, err
}

// GetByExternalID retrieves a lead event by the provider's identifier.
func (r *Repository) GetByExternalID(ctx context.Context, externalLeadID string) (LeadEvent, error) {
	var event LeadEvent
	err := r.pool.QueryRow(ctx, `
		SELECT `+leadEventColumns+`
		FROM lead_events
		WHERE external_lead_id = $1
	`, externalLeadID).Scan(
		&event.ID, &event.ExternalLeadID, &event.FormID, &event.AdID, &event.PageID,
		&event.RawPayload, &event.CandidateID, &event.LinkStatus, &event.LinkNote,
		&event.ReceivedAt, &event.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadEvent{}, ErrLeadEventNotFound
	}
	return event, err
}

// ListPending returns events parked for manual review, newest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]LeadEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadEventColumns+`
		FROM lead_events
		WHERE link_status = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, LinkStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LeadEvent
	for rows.Next() {
		var event LeadEvent
		if err := rows.Scan(
			&event.ID, &event.ExternalLeadID, &event.FormID, &event.AdID, &event.PageID,
			&event.RawPayload, &event.CandidateID, &event.LinkStatus, &event.LinkNote,
			&event.ReceivedAt, &event.ProcessedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
