package ingestion

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"recruitbase_backend/platform/logger"
	"recruitbase_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type handlerFixture struct {
	*serviceFixture
	engine *gin.Engine
}

func newHandlerFixture(t *testing.T, ackAfterPersist bool) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newServiceFixture()
	log := logger.New("test")
	h := NewHandler(f.svc, NewVerifier(webhookTestConfig{token: "secret"}, log), validator.New(), ackAfterPersist, log)

	engine := gin.New()
	engine.GET("/webhooks/leads", h.HandleVerify)
	engine.POST("/webhooks/leads", h.HandleDelivery)
	engine.POST("/admin/ingestion/leads/:externalId/link", h.HandleResolvePending)
	return &handlerFixture{serviceFixture: f, engine: engine}
}

func (f *handlerFixture) verify(params url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhooks/leads?"+params.Encode(), nil)
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) deliver(body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleVerifyEchoesChallenge(t *testing.T) {
	f := newHandlerFixture(t, false)

	tests := []struct {
		name   string
		params url.Values
	}{
		{name: "hub-prefixed params", params: url.Values{
			"hub.mode":         {"subscribe"},
			"hub.verify_token": {"secret"},
			"hub.challenge":    {"1158201444"},
		}},
		{name: "plain params", params: url.Values{
			"mode":         {"subscribe"},
			"verify_token": {"secret"},
			"challenge":    {"1158201444"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.verify(tt.params)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if rec.Body.String() != "1158201444" {
				t.Errorf("body = %q, want the raw challenge", rec.Body.String())
			}
		})
	}
}

func TestHandleVerifyRejectsWithEmptyBody(t *testing.T) {
	f := newHandlerFixture(t, false)

	rec := f.verify(url.Values{
		"hub.mode":         {"subscribe"},
		"hub.verify_token": {"wrong"},
		"hub.challenge":    {"xyz"},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestHandleDeliveryAcksAndProcesses(t *testing.T) {
	f := newHandlerFixture(t, false)

	body, _ := json.Marshal(deliveryFor("L1", field("phone_number", "9876543210")))
	rec := f.deliver(body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != ackBody {
		t.Errorf("body = %q, want %q", rec.Body.String(), ackBody)
	}
	if f.merger.calls != 1 {
		t.Errorf("merger calls = %d, want 1", f.merger.calls)
	}
}

func TestHandleDeliveryMalformedBodyStillAcks(t *testing.T) {
	f := newHandlerFixture(t, false)

	rec := f.deliver([]byte(`{"object": "page", "entry": [`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != ackBody {
		t.Errorf("body = %q, want %q", rec.Body.String(), ackBody)
	}
	if f.store.upserts != 0 {
		t.Errorf("upserts = %d, want 0", f.store.upserts)
	}
}

func TestHandleDeliveryUnexpectedObjectStillAcks(t *testing.T) {
	f := newHandlerFixture(t, false)

	rec := f.deliver([]byte(`{"object": "user", "entry": []}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != ackBody {
		t.Errorf("body = %q, want %q", rec.Body.String(), ackBody)
	}
}

func TestHandleDeliveryStoreFailureIsAckedByDefault(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.store.failUpsert = true

	body, _ := json.Marshal(deliveryFor("L1"))
	rec := f.deliver(body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != ackBody {
		t.Errorf("body = %q, want %q", rec.Body.String(), ackBody)
	}
}

func TestHandleResolvePendingLinksEvent(t *testing.T) {
	f := newHandlerFixture(t, false)
	raw, _ := json.Marshal(ChangeValue{LeadgenID: "L1", FieldData: []FieldEntry{field("email", "a@b.com")}})
	f.store.events["L1"] = LeadEvent{ExternalLeadID: "L1", RawPayload: raw, LinkStatus: LinkStatusPending}

	candidateID := uuid.New()
	body, _ := json.Marshal(ResolvePendingRequest{CandidateID: candidateID.String()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ingestion/leads/L1/link", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	event := f.store.events["L1"]
	if event.CandidateID == nil || *event.CandidateID != candidateID {
		t.Errorf("event candidate = %v, want %v", event.CandidateID, candidateID)
	}
	if !f.bus.has("ingestion.lead_event.linked") {
		t.Errorf("published events = %v, want linked", f.bus.names())
	}
}

func TestHandleResolvePendingRejectsInvalidBody(t *testing.T) {
	f := newHandlerFixture(t, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing candidate id", body: `{}`},
		{name: "not a uuid", body: `{"candidateId": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/ingestion/leads/L1/link", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			f.engine.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleDeliveryAckAfterPersistRefusesOnStoreFailure(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.store.failUpsert = true

	body, _ := json.Marshal(deliveryFor("L1"))
	rec := f.deliver(body)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider redelivers", rec.Code)
	}
}
