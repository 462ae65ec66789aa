// Package notify delivers operational alert emails via SendGrid.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mailchat/internal/analytics"
	"mailchat/internal/config"
	"mailchat/internal/models"
)

const maxFailedIDsInAlert = 20

// Service sends sync failure alerts. It satisfies the sync engine's
// alerter contract; delivery is best-effort and failures are only
// logged.
type Service struct {
	apiKey     string
	alertEmail string
	fromEmail  string
	analytics  *analytics.Service
}

// NewService creates the alert sender. analyticsService may be nil.
func NewService(cfg *config.Config, analyticsService *analytics.Service) *Service {
	fromEmail := cfg.AlertFromEmail
	if fromEmail == "" {
		// SendGrid requires a verified sender; the operator address is
		// usually the one that is verified
		fromEmail = cfg.AlertEmail
	}
	return &Service{
		apiKey:     cfg.SendGridAPIKey,
		alertEmail: cfg.AlertEmail,
		fromEmail:  fromEmail,
		analytics:  analyticsService,
	}
}

// Enabled reports whether alerts can actually be delivered
func (s *Service) Enabled() bool {
	return s.apiKey != "" && s.alertEmail != ""
}

// SyncFailure emails a summary of a failed or degraded sync run
func (s *Service) SyncFailure(ctx context.Context, mailboxID string, report *models.SyncReport, runErr error) {
	if !s.Enabled() {
		fmt.Printf("[NOTIFY] Alerting not configured, skipping alert for %s\n", mailboxID)
		return
	}

	subject := fmt.Sprintf("Mailbox sync degraded: %s", mailboxID)
	if runErr != nil {
		subject = fmt.Sprintf("Mailbox sync failed: %s", mailboxID)
	}

	if err := s.send(subject, buildSyncFailureBody(mailboxID, report, runErr)); err != nil {
		fmt.Printf("[NOTIFY] Failed to send alert for %s: %v\n", mailboxID, err)
		return
	}

	fmt.Printf("[NOTIFY] Sent sync alert for %s to %s\n", mailboxID, s.alertEmail)

	if s.analytics != nil {
		if err := s.analytics.TrackAlert(ctx, mailboxID); err != nil {
			fmt.Printf("[NOTIFY] Failed to track alert event: %v\n", err)
		}
	}
}

func (s *Service) send(subject, body string) error {
	from := mail.NewEmail("Mailchat Sync", s.fromEmail)
	to := mail.NewEmail("Operator", s.alertEmail)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

// buildSyncFailureBody renders the plain-text alert body
func buildSyncFailureBody(mailboxID string, report *models.SyncReport, runErr error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The sync run for %s needs attention.\n\n", mailboxID)
	fmt.Fprintf(&sb, "Timestamp: %s\n", time.Now().UTC().Format(time.RFC3339))
	if runErr != nil {
		fmt.Fprintf(&sb, "Run error: %v\n", runErr)
	}

	if report != nil {
		fmt.Fprintf(&sb, "\nRun %s (%s):\n", report.RunID, report.Mode)
		fmt.Fprintf(&sb, "  Fetched:  %d\n", report.Fetched)
		fmt.Fprintf(&sb, "  Indexed:  %d\n", report.Indexed)
		fmt.Fprintf(&sb, "  Skipped:  %d\n", report.SkippedUnchanged)
		fmt.Fprintf(&sb, "  Failed:   %d\n", report.Failed)
		fmt.Fprintf(&sb, "  Deleted:  %d\n", report.Deleted)
		fmt.Fprintf(&sb, "  Duration: %s\n", report.Duration())

		if len(report.FailedMessageIDs) > 0 {
			ids := report.FailedMessageIDs
			if len(ids) > maxFailedIDsInAlert {
				ids = ids[:maxFailedIDsInAlert]
			}
			fmt.Fprintf(&sb, "\nFailed message ids (first %d of %d):\n  %s\n",
				len(ids), len(report.FailedMessageIDs), strings.Join(ids, "\n  "))
		}
	}

	return sb.String()
}
