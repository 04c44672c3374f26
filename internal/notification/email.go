package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/protocol"
	"github.com/smukkama/prayer-times/internal/queue"
	"github.com/smukkama/prayer-times/pkg/config"
)

// SendFunc delivers a raw message, with the signature of smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
	send   SendFunc
	logger *zap.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailNotifier{config: cfg, send: smtp.SendMail, logger: logger}
}

// WithSender replaces the SMTP delivery function
func (e *EmailNotifier) WithSender(send SendFunc) *EmailNotifier {
	e.send = send
	return e
}

// Configured reports whether SMTP credentials are set
func (e *EmailNotifier) Configured() bool {
	return e.config.Username != "" && e.config.Password != ""
}

var monthBuiltTemplate = template.Must(template.New("month_built").Parse(`
Prayer Times Ready
==================

Location: {{.LocationID}}
Month: {{.MonthName}} {{.Year}}
Days: {{.Days}}
Unavailable cells: {{.FailedCells}}
Run ID: {{.RunID}}
Built at: {{.BuiltAt}}
{{if .FailedCells}}
Some sources could not provide times for some days. Those cells are
shown as n/a in the comparison table.
{{else}}
Every source provided times for every day of the month.
{{end}}
---
Prayer Times Notification System
`))

type monthBuiltView struct {
	*protocol.MonthBuiltNotification
	MonthName string
}

// SendMonthBuilt sends an email announcing a built month
func (e *EmailNotifier) SendMonthBuilt(n *protocol.MonthBuiltNotification) error {
	if n.Type != protocol.NotificationTypeMonthBuilt {
		return fmt.Errorf("unknown notification type: %s", n.Type)
	}
	if n.Month < 1 || n.Month > 12 {
		return fmt.Errorf("invalid month %d in notification %s", n.Month, n.RunID)
	}

	month := time.Month(n.Month)
	subject := fmt.Sprintf("Prayer times for %s %d ready - %s", month, n.Year, n.LocationID)
	if n.FailedCells > 0 {
		subject = fmt.Sprintf("Prayer times for %s %d ready with %d unavailable cells - %s", month, n.Year, n.FailedCells, n.LocationID)
	}

	var buf bytes.Buffer
	if err := monthBuiltTemplate.Execute(&buf, monthBuiltView{MonthBuiltNotification: n, MonthName: month.String()}); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return e.sendEmail(subject, buf.String())
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if !e.Configured() {
		e.logger.Info("SMTP not configured, skipping email", zap.String("subject", subject), zap.String("body", body))
		return nil
	}

	// Construct message
	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("Email sent", zap.String("subject", subject))
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if !e.Configured() {
		return errors.New("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	e.logger.Info("SMTP connection test successful", zap.String("addr", addr))
	return nil
}

// Consume emails every month notification read from reader until ctx is
// done. Undecodable messages are committed and skipped; a failed send
// leaves the offset uncommitted.
func (e *EmailNotifier) Consume(ctx context.Context, reader queue.MessageReader) error {
	for {
		msg, err := reader.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("Failed to consume message", zap.Error(err))
			continue
		}

		n, err := protocol.DecodeMonthBuilt(msg.Value)
		if err != nil {
			e.logger.Warn("Failed to decode notification", zap.Int64("offset", msg.Offset), zap.Error(err))
			if err := reader.Commit(ctx, msg); err != nil {
				e.logger.Error("Failed to commit offset", zap.Error(err))
			}
			continue
		}

		if err := e.SendMonthBuilt(n); err != nil {
			e.logger.Error("Failed to send notification", zap.String("run_id", n.RunID), zap.Error(err))
			continue
		}

		if err := reader.Commit(ctx, msg); err != nil {
			e.logger.Error("Failed to commit offset", zap.Error(err))
		}
	}
}
