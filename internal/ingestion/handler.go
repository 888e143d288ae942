package ingestion

import (
	"net/http"
	"strconv"
	"time"

	"recruitbase_backend/platform/apperr"
	"recruitbase_backend/platform/httpkit"
	"recruitbase_backend/platform/logger"
	"recruitbase_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ackBody is the fixed acknowledgment body returned on delivery.
const ackBody = "EVENT_RECEIVED"

// Handler exposes the ingestion HTTP surface: the public webhook endpoints
// and the operator endpoints for inspecting and replaying lead events.
type Handler struct {
	svc             *Service
	verifier        *Verifier
	val             *validator.Validator
	ackAfterPersist bool
	log             *logger.Logger
}

// NewHandler creates the ingestion handler.
func NewHandler(svc *Service, verifier *Verifier, val *validator.Validator, ackAfterPersist bool, log *logger.Logger) *Handler {
	return &Handler{
		svc:             svc,
		verifier:        verifier,
		val:             val,
		ackAfterPersist: ackAfterPersist,
		log:             log,
	}
}

// HandleVerify answers the provider's subscription-verification handshake.
// On success the challenge is echoed back as plain text; on failure the
// response is 403 with no body.
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := firstQuery(c, "hub.mode", "mode")
	token := firstQuery(c, "hub.verify_token", "verify_token")
	challenge := firstQuery(c, "hub.challenge", "challenge")

	echo, err := h.verifier.Verify(mode, token, challenge)
	if err != nil {
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, echo)
}

// HandleDelivery receives a webhook delivery. The provider retries on
// non-2xx, so the default is to acknowledge unconditionally and keep
// failures internal. With ack-after-persist enabled, a lead-store failure
// returns 500 so the provider redelivers instead of the event being lost.
func (h *Handler) HandleDelivery(c *gin.Context) {
	var payload DeliveryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("malformed delivery body", "error", err.Error())
		c.String(http.StatusOK, ackBody)
		return
	}

	if err := h.svc.ProcessDelivery(c.Request.Context(), payload); err != nil {
		if apperr.Is(err, apperr.KindBadRequest) {
			h.log.Warn("delivery envelope rejected", "error", err.Error())
			c.String(http.StatusOK, ackBody)
			return
		}
		if h.ackAfterPersist {
			c.Status(http.StatusInternalServerError)
			return
		}
		h.log.Error("delivery processing failed", "error", err.Error())
	}

	c.String(http.StatusOK, ackBody)
}

// leadEventResponse is the operator view of a stored lead event.
type leadEventResponse struct {
	ID             uuid.UUID  `json:"id"`
	ExternalLeadID string     `json:"externalLeadId"`
	FormID         string     `json:"formId,omitempty"`
	AdID           string     `json:"adId,omitempty"`
	PageID         string     `json:"pageId,omitempty"`
	CandidateID    *uuid.UUID `json:"candidateId,omitempty"`
	LinkStatus     string     `json:"linkStatus"`
	LinkNote       *string    `json:"linkNote,omitempty"`
	ReceivedAt     time.Time  `json:"receivedAt"`
	ProcessedAt    time.Time  `json:"processedAt"`
}

func toLeadEventResponse(event LeadEvent) leadEventResponse {
	return leadEventResponse{
		ID:             event.ID,
		ExternalLeadID: event.ExternalLeadID,
		FormID:         event.FormID,
		AdID:           event.AdID,
		PageID:         event.PageID,
		CandidateID:    event.CandidateID,
		LinkStatus:     event.LinkStatus,
		LinkNote:       event.LinkNote,
		ReceivedAt:     event.ReceivedAt,
		ProcessedAt:    event.ProcessedAt,
	}
}

// HandleGetLeadEvent returns one stored lead event by external id.
func (h *Handler) HandleGetLeadEvent(c *gin.Context) {
	event, err := h.svc.GetLeadEvent(c.Request.Context(), c.Param("externalId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toLeadEventResponse(event))
}

// HandleListPending returns lead events parked for manual review.
func (h *Handler) HandleListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	pending, err := h.svc.ListPendingLeadEvents(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	responses := make([]leadEventResponse, 0, len(pending))
	for _, event := range pending {
		responses = append(responses, toLeadEventResponse(event))
	}
	httpkit.OK(c, gin.H{"events": responses})
}

// ResolvePendingRequest is the request body for manually linking a parked
// lead event to a candidate.
type ResolvePendingRequest struct {
	CandidateID string `json:"candidateId" validate:"required,uuid"`
}

// HandleResolvePending links a pending lead event to an operator-chosen
// candidate.
func (h *Handler) HandleResolvePending(c *gin.Context) {
	var req ResolvePendingRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	candidateID, err := uuid.Parse(req.CandidateID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid candidate id", err.Error())
		return
	}

	externalID := c.Param("externalId")
	if err := h.svc.ResolvePending(c.Request.Context(), externalID, candidateID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"externalLeadId": externalID, "candidateId": candidateID, "status": "linked"})
}

// HandleReplay re-runs resolution and merge for a stored lead event.
func (h *Handler) HandleReplay(c *gin.Context) {
	externalID := c.Param("externalId")
	if err := h.svc.Reprocess(c.Request.Context(), externalID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"externalLeadId": externalID, "status": "reprocessed"})
}

// bindAndValidate binds the JSON body and runs struct validation. On failure
// it writes the 400 response and returns false.
func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return false
	}
	return true
}

// firstQuery returns the first non-empty value among the named query params.
func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}
