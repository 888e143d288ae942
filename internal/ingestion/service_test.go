package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"recruitbase_backend/internal/candidates"
	"recruitbase_backend/internal/events"
	"recruitbase_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore keeps lead events in memory with upsert semantics matching the
// real repository: redelivery replaces the payload only.
type fakeStore struct {
	events     map[string]LeadEvent
	upserts    int
	failUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]LeadEvent)}
}

func (s *fakeStore) Upsert(_ context.Context, externalLeadID, formID, adID, pageID string, raw []byte) (LeadEvent, error) {
	if s.failUpsert {
		return LeadEvent{}, errors.New("connection refused")
	}
	s.upserts++

	if existing, ok := s.events[externalLeadID]; ok {
		existing.RawPayload = raw
		existing.ProcessedAt = existing.ReceivedAt.Add(time.Minute)
		s.events[externalLeadID] = existing
		return existing, nil
	}

	now := time.Now()
	event := LeadEvent{
		ID:             uuid.New(),
		ExternalLeadID: externalLeadID,
		FormID:         formID,
		AdID:           adID,
		PageID:         pageID,
		RawPayload:     raw,
		LinkStatus:     LinkStatusUnlinked,
		ReceivedAt:     now,
		ProcessedAt:    now,
	}
	s.events[externalLeadID] = event
	return event, nil
}

func (s *fakeStore) GetByExternalID(_ context.Context, externalLeadID string) (LeadEvent, error) {
	event, ok := s.events[externalLeadID]
	if !ok {
		return LeadEvent{}, ErrLeadEventNotFound
	}
	return event, nil
}

func (s *fakeStore) ListPending(_ context.Context, _ int) ([]LeadEvent, error) {
	var pending []LeadEvent
	for _, event := range s.events {
		if event.LinkStatus == LinkStatusPending {
			pending = append(pending, event)
		}
	}
	return pending, nil
}

// fakeMerger mimics the merge transaction against the fake store.
type fakeMerger struct {
	store   *fakeStore
	outcome candidates.MergeOutcome
	err     error

	calls     int
	lastParam candidates.MergeParams
	ambiguous []string
}

func (m *fakeMerger) MergeOrCreate(_ context.Context, params candidates.MergeParams, _ bool) (candidates.MergeOutcome, error) {
	m.calls++
	m.lastParam = params
	if m.err != nil {
		return candidates.MergeOutcome{}, m.err
	}

	event := m.store.events[params.ExternalLeadID]
	if m.outcome.Pending {
		event.LinkStatus = LinkStatusPending
		note := m.outcome.PendingReason
		event.LinkNote = &note
	} else if m.outcome.CandidateID != nil {
		event.LinkStatus = LinkStatusLinked
		event.CandidateID = m.outcome.CandidateID
	}
	m.store.events[params.ExternalLeadID] = event
	return m.outcome, nil
}

func (m *fakeMerger) MarkAmbiguous(_ context.Context, externalLeadID, _ string) error {
	m.ambiguous = append(m.ambiguous, externalLeadID)
	return nil
}

func (m *fakeMerger) LinkManually(_ context.Context, externalLeadID string, candidateID uuid.UUID, _ candidates.MergeParams) error {
	if m.err != nil {
		return m.err
	}
	event := m.store.events[externalLeadID]
	event.LinkStatus = LinkStatusLinked
	event.CandidateID = &candidateID
	m.store.events[externalLeadID] = event
	return nil
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event)          { b.published = append(b.published, event) }
func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	var names []string
	for _, event := range b.published {
		names = append(names, event.EventName())
	}
	return names
}

func (b *recordingBus) has(name string) bool {
	for _, event := range b.published {
		if event.EventName() == name {
			return true
		}
	}
	return false
}

type fakeScheduler struct {
	scheduled []string
}

func (s *fakeScheduler) ScheduleLeadReplay(_ context.Context, externalLeadID string) error {
	s.scheduled = append(s.scheduled, externalLeadID)
	return nil
}

type fakeFetcher struct {
	detail *LeadDetail
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) *LeadDetail {
	f.calls++
	return f.detail
}

func deliveryFor(externalID string, fields ...FieldEntry) DeliveryPayload {
	return DeliveryPayload{
		Object: "page",
		Entry: []Entry{{
			ID: "page-1",
			Changes: []Change{{
				Field: "leadgen",
				Value: ChangeValue{LeadgenID: externalID, FormID: "F1", PageID: "P1", FieldData: fields},
			}},
		}},
	}
}

type serviceFixture struct {
	svc       *Service
	store     *fakeStore
	merger    *fakeMerger
	bus       *recordingBus
	scheduler *fakeScheduler
	fetcher   *fakeFetcher
}

func newServiceFixture() *serviceFixture {
	store := newFakeStore()
	candidateID := uuid.New()
	f := &serviceFixture{
		store:     store,
		merger:    &fakeMerger{store: store, outcome: candidates.MergeOutcome{CandidateID: &candidateID, Created: true}},
		bus:       &recordingBus{},
		scheduler: &fakeScheduler{},
		fetcher:   &fakeFetcher{},
	}
	f.svc = NewService(
		store,
		NewNormalizer("+91"),
		f.fetcher,
		NewResolver(&fakeDirectory{}, false),
		f.merger,
		f.bus,
		f.scheduler,
		false,
		logger.New("test"),
	)
	return f
}

func TestProcessDeliveryCreatesAndLinks(t *testing.T) {
	f := newServiceFixture()
	payload := deliveryFor("L2", field("phone_number", "9999999999"))

	if err := f.svc.ProcessDelivery(context.Background(), payload); err != nil {
		t.Fatalf("ProcessDelivery returned error: %v", err)
	}

	if f.merger.calls != 1 {
		t.Fatalf("merger calls = %d, want 1", f.merger.calls)
	}
	if f.merger.lastParam.Phone == nil || *f.merger.lastParam.Phone != "+919999999999" {
		t.Errorf("merged phone = %v, want +919999999999", f.merger.lastParam.Phone)
	}
	if f.merger.lastParam.Country == nil || *f.merger.lastParam.Country != "IN" {
		t.Errorf("merged country = %v, want IN", f.merger.lastParam.Country)
	}
	if event := f.store.events["L2"]; event.LinkStatus != LinkStatusLinked {
		t.Errorf("link status = %q, want linked", event.LinkStatus)
	}
	if !f.bus.has("ingestion.lead_event.linked") || !f.bus.has("candidates.candidate.created") {
		t.Errorf("published events = %v", f.bus.names())
	}
}

func TestProcessDeliveryRedeliveryIsIdempotent(t *testing.T) {
	f := newServiceFixture()
	payload := deliveryFor("L1", field("email", "a@b.com"), field("phone_number", "9876543210"))

	if err := f.svc.ProcessDelivery(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.ProcessDelivery(context.Background(), payload); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(f.store.events) != 1 {
		t.Errorf("stored events = %d, want 1", len(f.store.events))
	}
	if f.store.upserts != 2 {
		t.Errorf("upserts = %d, want 2 (payload refresh on redelivery)", f.store.upserts)
	}
	if f.merger.calls != 1 {
		t.Errorf("merger calls = %d, want 1 (second delivery short-circuits)", f.merger.calls)
	}
}

func TestProcessDeliveryNoPhoneParksPending(t *testing.T) {
	f := newServiceFixture()
	f.merger.outcome = candidates.MergeOutcome{Pending: true, PendingReason: "no phone present"}

	payload := deliveryFor("L3", field("full_name", "Ghost Lead"), field("email", "ghost@b.com"))
	if err := f.svc.ProcessDelivery(context.Background(), payload); err != nil {
		t.Fatalf("ProcessDelivery returned error: %v", err)
	}

	if event := f.store.events["L3"]; event.LinkStatus != LinkStatusPending {
		t.Errorf("link status = %q, want pending", event.LinkStatus)
	}
	if !f.bus.has("ingestion.lead_event.pending_review") {
		t.Errorf("published events = %v, want pending_review", f.bus.names())
	}
}

func TestProcessDeliveryStoreFailurePropagates(t *testing.T) {
	f := newServiceFixture()
	f.store.failUpsert = true

	err := f.svc.ProcessDelivery(context.Background(), deliveryFor("L4"))
	if err == nil {
		t.Fatal("expected error when lead store fails")
	}
	if f.merger.calls != 0 {
		t.Errorf("merger calls = %d, want 0", f.merger.calls)
	}
}

func TestProcessDeliveryMergeFailureSchedulesReplay(t *testing.T) {
	f := newServiceFixture()
	f.merger.err = errors.New("deadlock detected")

	if err := f.svc.ProcessDelivery(context.Background(), deliveryFor("L5", field("phone", "9876543210"))); err != nil {
		t.Fatalf("merge failures must not fail the delivery: %v", err)
	}

	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != "L5" {
		t.Errorf("scheduled replays = %v, want [L5]", f.scheduler.scheduled)
	}
	if !f.bus.has("ingestion.lead_event.failed") {
		t.Errorf("published events = %v, want failed", f.bus.names())
	}
}

func TestProcessDeliveryAmbiguousIdentityParksForReview(t *testing.T) {
	f := newServiceFixture()
	f.merger.err = candidates.ErrAmbiguousIdentity

	if err := f.svc.ProcessDelivery(context.Background(), deliveryFor("L6", field("phone", "9876543210"), field("email", "a@b.com"))); err != nil {
		t.Fatalf("ambiguity must not fail the delivery: %v", err)
	}

	if len(f.merger.ambiguous) != 1 || f.merger.ambiguous[0] != "L6" {
		t.Errorf("ambiguous marks = %v, want [L6]", f.merger.ambiguous)
	}
	if !f.bus.has("ingestion.lead_event.pending_review") {
		t.Errorf("published events = %v, want pending_review", f.bus.names())
	}
	if len(f.scheduler.scheduled) != 0 {
		t.Errorf("scheduled replays = %v, want none", f.scheduler.scheduled)
	}
}

func TestProcessDeliveryStubPayloadUsesFetcher(t *testing.T) {
	f := newServiceFixture()
	f.fetcher.detail = &LeadDetail{
		ID:        "L7",
		FormID:    "F-remote",
		FieldData: []FieldEntry{field("phone_number", "9876543210")},
	}

	if err := f.svc.ProcessDelivery(context.Background(), deliveryFor("L7")); err != nil {
		t.Fatalf("ProcessDelivery returned error: %v", err)
	}

	if f.fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", f.fetcher.calls)
	}
	if f.merger.lastParam.Phone == nil || *f.merger.lastParam.Phone != "+919876543210" {
		t.Errorf("merged phone = %v, want value from fetched detail", f.merger.lastParam.Phone)
	}
}

func TestProcessDeliveryFieldDataSkipsFetcher(t *testing.T) {
	f := newServiceFixture()
	f.fetcher.detail = &LeadDetail{FieldData: []FieldEntry{field("phone_number", "1111111111")}}

	if err := f.svc.ProcessDelivery(context.Background(), deliveryFor("L8", field("phone_number", "9876543210"))); err != nil {
		t.Fatalf("ProcessDelivery returned error: %v", err)
	}

	if f.fetcher.calls != 0 {
		t.Errorf("fetcher calls = %d, want 0 when payload carries field data", f.fetcher.calls)
	}
}

func TestReprocessReplaysStoredPayload(t *testing.T) {
	f := newServiceFixture()

	raw, _ := json.Marshal(ChangeValue{
		LeadgenID: "L9",
		FieldData: []FieldEntry{field("phone_number", "9876543210")},
	})
	f.store.events["L9"] = LeadEvent{
		ID:             uuid.New(),
		ExternalLeadID: "L9",
		RawPayload:     raw,
		LinkStatus:     LinkStatusUnlinked,
	}

	if err := f.svc.Reprocess(context.Background(), "L9"); err != nil {
		t.Fatalf("Reprocess returned error: %v", err)
	}
	if f.merger.calls != 1 {
		t.Errorf("merger calls = %d, want 1", f.merger.calls)
	}
	if f.merger.lastParam.Phone == nil || *f.merger.lastParam.Phone != "+919876543210" {
		t.Errorf("merged phone = %v, want +919876543210", f.merger.lastParam.Phone)
	}
}

func TestReprocessAlreadyLinkedIsNoOp(t *testing.T) {
	f := newServiceFixture()
	candidateID := uuid.New()
	f.store.events["L10"] = LeadEvent{
		ExternalLeadID: "L10",
		CandidateID:    &candidateID,
		LinkStatus:     LinkStatusLinked,
	}

	if err := f.svc.Reprocess(context.Background(), "L10"); err != nil {
		t.Fatalf("Reprocess returned error: %v", err)
	}
	if f.merger.calls != 0 {
		t.Errorf("merger calls = %d, want 0", f.merger.calls)
	}
}

func TestReprocessUnknownLeadFails(t *testing.T) {
	f := newServiceFixture()

	if err := f.svc.Reprocess(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown lead event")
	}
}
