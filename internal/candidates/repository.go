package candidates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRelinkConflict is returned when a lead event is already linked to a
// different candidate. Linked events are immutable; they are never repointed.
var ErrRelinkConflict = errors.New("lead event already linked to a different candidate")

// ErrCandidateNotFound is returned when a manual link names a candidate that
// does not exist.
var ErrCandidateNotFound = errors.New("candidate not found")

// Lead event link statuses, mirrored here because the merge transaction
// writes the link row atomically with the candidate mutation.
const (
	linkStatusLinked  = "linked"
	linkStatusPending = "pending"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// find helpers can run both outside and inside the merge transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const candidateColumns = `id, first_name, last_name, email, phone, country, contacts, created_at, updated_at`

// Repository provides data access for candidates and owns the transactional
// merge-or-create path that links lead events to them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new candidates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCandidate(row pgx.Row) (*Candidate, error) {
	var (
		c        Candidate
		contacts []byte
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Country, &contacts, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &c.Contacts); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// FindByPhoneCountry returns the oldest candidate whose canonical phone and
// country both match, or nil when none exists.
func (r *Repository) FindByPhoneCountry(ctx context.Context, phone, country string) (*Candidate, error) {
	return r.findByPhoneCountry(ctx, r.pool, phone, country)
}

func (r *Repository) findByPhoneCountry(ctx context.Context, q querier, phone, country string) (*Candidate, error) {
	return scanCandidate(q.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE phone = $1 AND country = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, phone, country))
}

// FindByEmail returns the oldest candidate whose canonical email matches
// case-insensitively, or nil when none exists.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Candidate, error) {
	return r.findByEmail(ctx, r.pool, email)
}

func (r *Repository) findByEmail(ctx context.Context, q querier, email string) (*Candidate, error) {
	return scanCandidate(q.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE lower(email) = lower($1)
		ORDER BY created_at ASC
		LIMIT 1
	`, email))
}

// FindByContact probes candidates' embedded contact histories for an entry
// carrying the given email or phone. Either argument may be empty.
func (r *Repository) FindByContact(ctx context.Context, email, phone string) (*Candidate, error) {
	return r.findByContact(ctx, r.pool, email, phone)
}

func (r *Repository) findByContact(ctx context.Context, q querier, email, phone string) (*Candidate, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	return scanCandidate(q.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE ($1 <> '' AND contacts @> jsonb_build_array(jsonb_build_object('email', $1::text)))
		   OR ($2 <> '' AND contacts @> jsonb_build_array(jsonb_build_object('phone', $2::text)))
		ORDER BY created_at ASC
		LIMIT 1
	`, email, phone))
}

// GetByID returns a candidate by primary key, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Candidate, error) {
	return scanCandidate(r.pool.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE id = $1
	`, id))
}

// MergeOrCreate runs the merge transaction for one lead event. It serializes
// on the lead's identity key with a transaction-scoped advisory lock, then
// re-resolves the identity inside the transaction so two concurrent
// deliveries sharing a phone or email can never both create a candidate.
//
// Outcomes follow the linking rules: a resolved candidate gets the contact
// entry appended (deduplicated per source) and the lead event linked; an
// unresolved lead with a phone creates a new candidate; an unresolved lead
// without a phone parks the event as pending.
func (r *Repository) MergeOrCreate(ctx context.Context, params MergeParams, strict bool) (out MergeOutcome, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return MergeOutcome{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	identityKey := identityKeyFor(params)
	if identityKey != "" {
		if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, identityKey); err != nil {
			return MergeOutcome{}, err
		}
	}

	candidate, matchedBy, err := r.resolveInTx(ctx, tx, params, strict)
	if err != nil {
		return MergeOutcome{}, err
	}

	switch {
	case candidate != nil:
		if err = r.appendContact(ctx, tx, candidate.ID, params); err != nil {
			return MergeOutcome{}, err
		}
		if err = r.linkLeadEvent(ctx, tx, params.ExternalLeadID, candidate.ID); err != nil {
			return MergeOutcome{}, err
		}
		out = MergeOutcome{CandidateID: &candidate.ID, MatchedBy: matchedBy}

	case params.Phone != nil:
		var created *Candidate
		created, err = r.createCandidate(ctx, tx, params)
		if err != nil {
			return MergeOutcome{}, err
		}
		if err = r.linkLeadEvent(ctx, tx, params.ExternalLeadID, created.ID); err != nil {
			return MergeOutcome{}, err
		}
		out = MergeOutcome{CandidateID: &created.ID, Created: true}

	default:
		reason := "no phone present"
		if err = r.markPending(ctx, tx, params.ExternalLeadID, reason); err != nil {
			return MergeOutcome{}, err
		}
		out = MergeOutcome{Pending: true, PendingReason: reason}
	}

	if err = tx.Commit(ctx); err != nil {
		return MergeOutcome{}, err
	}
	return out, nil
}

// MarkAmbiguous parks a lead event for manual review when strict resolution
// detected conflicting strategy results. Runs in its own transaction.
func (r *Repository) MarkAmbiguous(ctx context.Context, externalLeadID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = r.markPending(ctx, tx, externalLeadID, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LinkManually links a pending lead event to an operator-chosen candidate and
// records the lead's contact pair on it. The immutability rule still holds:
// an event already linked to a different candidate is never repointed.
func (r *Repository) LinkManually(ctx context.Context, externalLeadID string, candidateID uuid.UUID, params MergeParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	candidate, err := scanCandidate(tx.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE id = $1
	`, candidateID))
	if err != nil {
		return err
	}
	if candidate == nil {
		err = ErrCandidateNotFound
		return err
	}

	if err = r.appendContact(ctx, tx, candidateID, params); err != nil {
		return err
	}
	if err = r.linkLeadEvent(ctx, tx, externalLeadID, candidateID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// resolveInTx re-runs the ordered matching strategies against the locked
// transaction snapshot. In strict mode a phone match and an email match
// pointing at different candidates is reported as ambiguous.
func (r *Repository) resolveInTx(ctx context.Context, tx pgx.Tx, params MergeParams, strict bool) (*Candidate, string, error) {
	var byPhone *Candidate
	if params.Phone != nil && params.Country != nil {
		var err error
		byPhone, err = r.findByPhoneCountry(ctx, tx, *params.Phone, *params.Country)
		if err != nil {
			return nil, "", err
		}
	}

	if byPhone != nil && !strict {
		return byPhone, MatchedByPhone, nil
	}

	var byEmail *Candidate
	if params.Email != nil {
		var err error
		byEmail, err = r.findByEmail(ctx, tx, *params.Email)
		if err != nil {
			return nil, "", err
		}
	}

	if strict && byPhone != nil && byEmail != nil && byPhone.ID != byEmail.ID {
		return nil, "", ErrAmbiguousIdentity
	}
	if byPhone != nil {
		return byPhone, MatchedByPhone, nil
	}
	if byEmail != nil {
		return byEmail, MatchedByEmail, nil
	}

	email, phone := "", ""
	if params.Email != nil {
		email = *params.Email
	}
	if params.Phone != nil {
		phone = *params.Phone
	}
	byContact, err := r.findByContact(ctx, tx, email, phone)
	if err != nil {
		return nil, "", err
	}
	if byContact != nil {
		return byContact, MatchedByContactEmail, nil
	}
	return nil, "", nil
}

// ErrAmbiguousIdentity is returned in strict mode when the phone strategy and
// the email strategy resolve to different candidates.
var ErrAmbiguousIdentity = errors.New("phone and email resolve to different candidates")

// appendContact records the lead's contact pair on the candidate, skipping
// the append when an identical (email, phone) entry from the same source is
// already present. Missing canonical fields are backfilled.
func (r *Repository) appendContact(ctx context.Context, tx pgx.Tx, candidateID uuid.UUID, params MergeParams) error {
	probe, entry, err := contactJSON(params)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE candidates
		SET email = COALESCE(email, $2),
			phone = COALESCE(phone, $3),
			country = COALESCE(country, $4),
			contacts = CASE
				WHEN contacts @> $5::jsonb THEN contacts
				ELSE contacts || $6::jsonb
			END,
			updated_at = now()
		WHERE id = $1
	`, candidateID, params.Email, params.Phone, params.Country, probe, entry)
	return err
}

func (r *Repository) createCandidate(ctx context.Context, tx pgx.Tx, params MergeParams) (*Candidate, error) {
	_, entry, err := contactJSON(params)
	if err != nil {
		return nil, err
	}

	return scanCandidate(tx.QueryRow(ctx, `
		INSERT INTO candidates (first_name, last_name, email, phone, country, contacts)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING `+candidateColumns+`
	`, params.FirstName, params.LastName, params.Email, params.Phone, params.Country, entry))
}

// linkLeadEvent points the stored lead event at a candidate. A redelivered
// event already linked to the same candidate is a no-op; an event linked to
// a different candidate is never repointed.
func (r *Repository) linkLeadEvent(ctx context.Context, tx pgx.Tx, externalLeadID string, candidateID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE lead_events
		SET candidate_id = $2, link_status = $3, link_note = NULL, processed_at = now()
		WHERE external_lead_id = $1
		  AND (candidate_id IS NULL OR candidate_id = $2)
	`, externalLeadID, candidateID, linkStatusLinked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRelinkConflict
	}
	return nil
}

// markPending parks an unlinked lead event for manual review. Events already
// linked to a candidate stay linked.
func (r *Repository) markPending(ctx context.Context, tx pgx.Tx, externalLeadID, note string) error {
	_, err := tx.Exec(ctx, `
		UPDATE lead_events
		SET link_status = $2, link_note = $3, processed_at = now()
		WHERE external_lead_id = $1
		  AND candidate_id IS NULL
	`, externalLeadID, linkStatusPending, note)
	return err
}

// identityKeyFor picks the advisory-lock key for a lead: phone when present,
// otherwise email. Leads with neither share no identity and need no lock.
func identityKeyFor(params MergeParams) string {
	if params.Phone != nil {
		return "phone:" + *params.Phone
	}
	if params.Email != nil {
		return "email:" + *params.Email
	}
	return ""
}

// contactJSON builds the dedupe probe and the full entry for the contacts
// array. The probe carries only identity keys so containment ignores the
// timestamp of previously appended entries.
func contactJSON(params MergeParams) (probe []byte, entry []byte, err error) {
	type probeEntry struct {
		Email  *string `json:"email,omitempty"`
		Phone  *string `json:"phone,omitempty"`
		Source string  `json:"source"`
	}

	probe, err = json.Marshal([]probeEntry{{
		Email:  params.Email,
		Phone:  params.Phone,
		Source: ContactSourceLeadIngestion,
	}})
	if err != nil {
		return nil, nil, err
	}

	entry, err = json.Marshal([]ContactEntry{{
		Email:    params.Email,
		Phone:    params.Phone,
		Source:   ContactSourceLeadIngestion,
		Verified: false,
		AddedAt:  time.Now().UTC(),
	}})
	if err != nil {
		return nil, nil, err
	}
	return probe, entry, nil
}
