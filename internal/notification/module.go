package notification

import (
	"context"

	"recruitbase_backend/internal/events"
	"recruitbase_backend/platform/config"
	"recruitbase_backend/platform/logger"
)

// AlertSender delivers a pending-review alert to the operator inbox.
type AlertSender interface {
	SendPendingLeadAlert(ctx context.Context, toEmail string, alert PendingLeadAlert) error
}

// Module subscribes to ingestion events and turns them into operator alerts.
// With email disabled the module still subscribes and logs, so event flow is
// observable in every environment.
type Module struct {
	sender AlertSender
	inbox  string
	log    *logger.Logger
}

// NewModule creates the notification module and registers its subscriptions.
func NewModule(cfg config.EmailConfig, bus events.Bus, log *logger.Logger) *Module {
	m := &Module{inbox: cfg.GetReviewInboxAddress(), log: log}

	if cfg.GetEmailEnabled() {
		m.sender = NewSMTPSender(
			cfg.GetSMTPHost(),
			cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(),
			cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(),
			cfg.GetEmailFromName(),
		)
	} else {
		log.Warn("email disabled; pending-review alerts will only be logged")
	}

	bus.Subscribe(events.LeadPendingReview{}.EventName(), m)
	return m
}

// Handle dispatches subscribed events.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadPendingReview:
		return m.handlePendingReview(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handlePendingReview(ctx context.Context, e events.LeadPendingReview) error {
	if m.sender == nil {
		m.log.Info("lead pending review",
			"external_lead_id", e.ExternalLeadID,
			"reason", e.Reason,
		)
		return nil
	}

	return m.sender.SendPendingLeadAlert(ctx, m.inbox, PendingLeadAlert{
		ExternalLeadID: e.ExternalLeadID,
		Reason:         e.Reason,
		FullName:       e.FullName,
		Email:          e.Email,
	})
}

// Compile-time check that Module implements events.Handler
var _ events.Handler = (*Module)(nil)
