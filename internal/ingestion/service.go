package ingestion

import (
	"context"
	"encoding/json"
	"errors"

	"recruitbase_backend/internal/candidates"
	"recruitbase_backend/internal/events"
	"recruitbase_backend/platform/apperr"
	"recruitbase_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore persists lead events. Satisfied by Repository.
type LeadStore interface {
	Upsert(ctx context.Context, externalLeadID, formID, adID, pageID string, rawPayload []byte) (LeadEvent, error)
	GetByExternalID(ctx context.Context, externalLeadID string) (LeadEvent, error)
	ListPending(ctx context.Context, limit int) ([]LeadEvent, error)
}

// DetailFetcher retrieves full lead detail when the webhook payload is a
// stub. Implementations degrade to nil on any failure.
type DetailFetcher interface {
	Fetch(ctx context.Context, externalLeadID string) *LeadDetail
}

// CandidateMerger is the write side of the candidate context: the
// transactional merge-or-create path plus the manual-review escape hatch.
type CandidateMerger interface {
	MergeOrCreate(ctx context.Context, params candidates.MergeParams, strict bool) (candidates.MergeOutcome, error)
	MarkAmbiguous(ctx context.Context, externalLeadID, reason string) error
	LinkManually(ctx context.Context, externalLeadID string, candidateID uuid.UUID, params candidates.MergeParams) error
}

// ReplayScheduler enqueues a stored lead event for later reprocessing after
// a pipeline failure. May be nil when no queue backend is configured.
type ReplayScheduler interface {
	ScheduleLeadReplay(ctx context.Context, externalLeadID string) error
}

// Service orchestrates the ingestion pipeline: normalize, fetch detail,
// store, resolve, merge.
type Service struct {
	repo       LeadStore
	normalizer *Normalizer
	fetcher    DetailFetcher
	resolver   *Resolver
	merger     CandidateMerger
	bus        events.Bus
	scheduler  ReplayScheduler
	strict     bool
	log        *logger.Logger
}

// NewService creates the ingestion service. fetcher and scheduler may be nil;
// the pipeline then skips remote detail and failure replay respectively.
func NewService(
	repo LeadStore,
	normalizer *Normalizer,
	fetcher DetailFetcher,
	resolver *Resolver,
	merger CandidateMerger,
	bus events.Bus,
	scheduler ReplayScheduler,
	strict bool,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		normalizer: normalizer,
		fetcher:    fetcher,
		resolver:   resolver,
		merger:     merger,
		bus:        bus,
		scheduler:  scheduler,
		strict:     strict,
		log:        log,
	}
}

// ProcessDelivery handles one webhook delivery envelope. Each extracted lead
// is processed to completion independently; a failure in one never blocks the
// others. The returned error covers only lead-store persistence failures so
// the handler can refuse the acknowledgment when configured to.
func (s *Service) ProcessDelivery(ctx context.Context, payload DeliveryPayload) error {
	leads, skipped, err := ExtractLeads(payload)
	if err != nil {
		return err
	}
	for _, reason := range skipped {
		s.log.Warn("leadgen change skipped", "reason", reason)
	}

	var storeErrs []error
	for _, lead := range leads {
		if err := s.processLead(ctx, lead); err != nil {
			storeErrs = append(storeErrs, err)
		}
	}
	return errors.Join(storeErrs...)
}

// processLead runs the pipeline for one lead. Only a lead-store failure is
// returned; everything after the event is durably stored is logged, published
// and scheduled for replay instead.
func (s *Service) processLead(ctx context.Context, in IncomingLead) error {
	fields := in.FieldData
	if len(fields) == 0 && s.fetcher != nil {
		if detail := s.fetcher.Fetch(ctx, in.ExternalLeadID); detail != nil {
			fields = detail.FieldData
			if in.FormID == "" {
				in.FormID = detail.FormID
			}
			if in.AdID == "" {
				in.AdID = detail.AdID
			}
		}
	}

	lead := s.normalizer.Normalize(fields)

	event, err := s.repo.Upsert(ctx, in.ExternalLeadID, in.FormID, in.AdID, in.PageID, in.Raw)
	if err != nil {
		s.log.DatabaseError("lead_events.upsert", err)
		return apperr.Wrap(apperr.KindInternal, "lead event not persisted", err)
	}

	if event.CandidateID != nil {
		s.log.WebhookDelivery(in.ExternalLeadID, "already-linked")
		return nil
	}

	s.bus.Publish(ctx, events.LeadEventReceived{
		BaseEvent:      events.NewBaseEvent(),
		ExternalLeadID: event.ExternalLeadID,
		FormID:         event.FormID,
		PageID:         event.PageID,
		Redelivery:     event.ProcessedAt.After(event.ReceivedAt),
	})

	s.resolveAndMerge(ctx, in.ExternalLeadID, lead)
	return nil
}

// resolveAndMerge runs identity resolution and the merge transaction for a
// stored lead event. Failures here never propagate; the event stays
// replayable.
func (s *Service) resolveAndMerge(ctx context.Context, externalLeadID string, lead NormalizedLead) {
	resolution, err := s.resolver.Resolve(ctx, lead)
	if err != nil {
		if errors.Is(err, candidates.ErrAmbiguousIdentity) {
			s.parkAmbiguous(ctx, externalLeadID, lead)
			return
		}
		s.failProcessing(ctx, externalLeadID, "resolve", err)
		return
	}

	outcome, err := s.merger.MergeOrCreate(ctx, candidates.MergeParams{
		ExternalLeadID: externalLeadID,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Country:        lead.Country,
	}, s.strict)
	switch {
	case errors.Is(err, candidates.ErrAmbiguousIdentity):
		// The locked re-resolution can surface an ambiguity the first
		// pass missed when a concurrent delivery landed in between.
		s.parkAmbiguous(ctx, externalLeadID, lead)
		return
	case errors.Is(err, candidates.ErrRelinkConflict):
		s.log.WebhookDelivery(externalLeadID, "already-linked")
		return
	case err != nil:
		s.failProcessing(ctx, externalLeadID, "merge", err)
		return
	}

	switch {
	case outcome.Pending:
		s.log.WebhookDelivery(externalLeadID, "pending")
		s.bus.Publish(ctx, events.LeadPendingReview{
			BaseEvent:      events.NewBaseEvent(),
			ExternalLeadID: externalLeadID,
			Reason:         outcome.PendingReason,
			Email:          stringValue(lead.Email),
			FullName:       lead.FullName,
		})

	case outcome.CandidateID != nil:
		matchedBy := outcome.MatchedBy
		if matchedBy == "" {
			matchedBy = resolution.MatchedBy
		}
		s.log.WebhookDelivery(externalLeadID, "linked")
		s.bus.Publish(ctx, events.LeadLinked{
			BaseEvent:      events.NewBaseEvent(),
			ExternalLeadID: externalLeadID,
			CandidateID:    *outcome.CandidateID,
			Created:        outcome.Created,
			MatchedBy:      matchedBy,
		})
		if outcome.Created {
			s.bus.Publish(ctx, events.CandidateCreated{
				BaseEvent:      events.NewBaseEvent(),
				CandidateID:    *outcome.CandidateID,
				ExternalLeadID: externalLeadID,
				Phone:          stringValue(lead.Phone),
				Email:          stringValue(lead.Email),
			})
		}
	}
}

// parkAmbiguous moves an event to manual review after conflicting strategy
// results in strict mode.
func (s *Service) parkAmbiguous(ctx context.Context, externalLeadID string, lead NormalizedLead) {
	const reason = "ambiguous identity: phone and email match different candidates"
	if err := s.merger.MarkAmbiguous(ctx, externalLeadID, reason); err != nil {
		s.failProcessing(ctx, externalLeadID, "mark-ambiguous", err)
		return
	}
	s.log.WebhookDelivery(externalLeadID, "ambiguous")
	s.bus.Publish(ctx, events.LeadPendingReview{
		BaseEvent:      events.NewBaseEvent(),
		ExternalLeadID: externalLeadID,
		Reason:         reason,
		Email:          stringValue(lead.Email),
		FullName:       lead.FullName,
	})
}

// failProcessing records a post-persistence failure and schedules a replay
// when a queue backend is available.
func (s *Service) failProcessing(ctx context.Context, externalLeadID, stage string, err error) {
	s.log.Error("lead processing failed",
		"external_lead_id", externalLeadID,
		"stage", stage,
		"error", err.Error(),
	)
	s.bus.Publish(ctx, events.LeadProcessingFailed{
		BaseEvent:      events.NewBaseEvent(),
		ExternalLeadID: externalLeadID,
		Stage:          stage,
		ErrorMessage:   err.Error(),
	})

	if s.scheduler == nil {
		return
	}
	if schedErr := s.scheduler.ScheduleLeadReplay(ctx, externalLeadID); schedErr != nil {
		s.log.Error("lead replay scheduling failed",
			"external_lead_id", externalLeadID,
			"error", schedErr.Error(),
		)
	}
}

// Reprocess re-runs resolution and merge for a stored lead event, using the
// stored raw payload. Used by the replay worker and the admin replay
// endpoint. Already-linked events are a no-op.
func (s *Service) Reprocess(ctx context.Context, externalLeadID string) error {
	event, err := s.repo.GetByExternalID(ctx, externalLeadID)
	if errors.Is(err, ErrLeadEventNotFound) {
		return apperr.NotFound("lead event not found")
	}
	if err != nil {
		return err
	}
	if event.CandidateID != nil {
		return nil
	}

	var value ChangeValue
	if err := json.Unmarshal(event.RawPayload, &value); err != nil {
		return apperr.Wrap(apperr.KindInternal, "stored payload unreadable", err)
	}

	fields := value.FieldData
	if len(fields) == 0 && s.fetcher != nil {
		if detail := s.fetcher.Fetch(ctx, externalLeadID); detail != nil {
			fields = detail.FieldData
		}
	}

	s.resolveAndMerge(ctx, externalLeadID, s.normalizer.Normalize(fields))
	return nil
}

// ResolvePending links a parked lead event to an operator-chosen candidate.
// The lead's contact pair, rebuilt from the stored payload, is appended to the
// candidate in the same transaction.
func (s *Service) ResolvePending(ctx context.Context, externalLeadID string, candidateID uuid.UUID) error {
	event, err := s.repo.GetByExternalID(ctx, externalLeadID)
	if errors.Is(err, ErrLeadEventNotFound) {
		return apperr.NotFound("lead event not found")
	}
	if err != nil {
		return err
	}
	if event.CandidateID != nil {
		if *event.CandidateID == candidateID {
			return nil
		}
		return apperr.Conflict("lead event already linked to a different candidate")
	}

	var value ChangeValue
	if err := json.Unmarshal(event.RawPayload, &value); err != nil {
		return apperr.Wrap(apperr.KindInternal, "stored payload unreadable", err)
	}
	lead := s.normalizer.Normalize(value.FieldData)

	err = s.merger.LinkManually(ctx, externalLeadID, candidateID, candidates.MergeParams{
		ExternalLeadID: externalLeadID,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Country:        lead.Country,
	})
	switch {
	case errors.Is(err, candidates.ErrCandidateNotFound):
		return apperr.NotFound("candidate not found")
	case errors.Is(err, candidates.ErrRelinkConflict):
		return apperr.Conflict("lead event already linked to a different candidate")
	case err != nil:
		return err
	}

	s.log.WebhookDelivery(externalLeadID, "linked-manually")
	s.bus.Publish(ctx, events.LeadLinked{
		BaseEvent:      events.NewBaseEvent(),
		ExternalLeadID: externalLeadID,
		CandidateID:    candidateID,
		MatchedBy:      candidates.MatchedByManual,
	})
	return nil
}

// GetLeadEvent returns a stored lead event for inspection.
func (s *Service) GetLeadEvent(ctx context.Context, externalLeadID string) (LeadEvent, error) {
	event, err := s.repo.GetByExternalID(ctx, externalLeadID)
	if errors.Is(err, ErrLeadEventNotFound) {
		return LeadEvent{}, apperr.NotFound("lead event not found")
	}
	return event, err
}

// ListPendingLeadEvents returns events parked for manual review.
func (s *Service) ListPendingLeadEvents(ctx context.Context, limit int) ([]LeadEvent, error) {
	return s.repo.ListPending(ctx, limit)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
