// Package notification delivers operator alerts in response to domain
// events. It subscribes to the event bus so the ingestion pipeline never
// needs to know about email providers or templates.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// pendingAlertTemplate is the body of the review-inbox alert. Kept inline;
// there is only one notification type in this service.
var pendingAlertTemplate = template.Must(template.New("pending_alert").Parse(`
<p>A lead event could not be linked automatically and needs manual review.</p>
<table>
  <tr><td><strong>External lead ID</strong></td><td>{{.ExternalLeadID}}</td></tr>
  <tr><td><strong>Reason</strong></td><td>{{.Reason}}</td></tr>
  {{if .FullName}}<tr><td><strong>Name</strong></td><td>{{.FullName}}</td></tr>{{end}}
  {{if .Email}}<tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>{{end}}
</table>
<p>Review it under pending lead events in the admin panel.</p>
`))

// PendingLeadAlert carries the fields rendered into the review alert.
type PendingLeadAlert struct {
	ExternalLeadID string
	Reason         string
	FullName       string
	Email          string
}

// SMTPSender delivers alerts over the configured SMTP server via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// SendPendingLeadAlert emails the review inbox about a parked lead event.
func (s *SMTPSender) SendPendingLeadAlert(ctx context.Context, toEmail string, alert PendingLeadAlert) error {
	var body bytes.Buffer
	if err := pendingAlertTemplate.Execute(&body, alert); err != nil {
		return fmt.Errorf("render alert: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject("Lead event pending review: " + alert.ExternalLeadID)
	msg.SetBodyString(gomail.TypeTextHTML, body.String())

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
