// Package notify renders and sends buyer emails. Sends are fire-and-forget:
// failures are logged and never retried.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

// Mailer delivers one rendered HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Notifier is the email surface used by the outbox dispatcher.
type Notifier interface {
	SendPurchaseLinkEmail(ctx context.Context, to, purchaseID, link string)
	SendConfirmationEmail(ctx context.Context, to, purchaseID string, numbers []int, prizes []string)
}

var (
	linkTmpl = template.Must(template.New("link").Parse(`<h2>Thanks for your purchase</h2>
<p>Your purchase <strong>{{.PurchaseID}}</strong> was registered.</p>
<p>You can check its status and pick your numbers here:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>`))

	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<h2>Your numbers are confirmed</h2>
<p>Purchase <strong>{{.PurchaseID}}</strong></p>
<p>Numbers: {{.Numbers}}</p>
{{if .Prizes}}<p>Prizes in play:</p>
<ol>{{range .Prizes}}<li>{{.}}</li>{{end}}</ol>{{end}}
<p>Good luck!</p>`))
)

// EmailNotifier renders templates and hands them to a Mailer.
type EmailNotifier struct {
	mailer Mailer
	logger *slog.Logger
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(mailer Mailer, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, logger: logger}
}

func (n *EmailNotifier) SendPurchaseLinkEmail(ctx context.Context, to, purchaseID, link string) {
	html, err := render(linkTmpl, map[string]string{"PurchaseID": purchaseID, "Link": link})
	if err != nil {
		n.logger.Error("render purchase link email", "error", err, "purchase_id", purchaseID)
		return
	}
	n.send(ctx, to, "Your raffle purchase", html, purchaseID)
}

func (n *EmailNotifier) SendConfirmationEmail(ctx context.Context, to, purchaseID string, numbers []int, prizes []string) {
	html, err := render(confirmationTmpl, map[string]interface{}{
		"PurchaseID": purchaseID,
		"Numbers":    FormatNumbers(numbers),
		"Prizes":     prizes,
	})
	if err != nil {
		n.logger.Error("render confirmation email", "error", err, "purchase_id", purchaseID)
		return
	}
	n.send(ctx, to, "Your raffle numbers", html, purchaseID)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, html, purchaseID string) {
	if err := n.mailer.Send(ctx, to, subject, html); err != nil {
		n.logger.Warn("email send failed", "error", err, "purchase_id", purchaseID, "subject", subject)
		return
	}
	n.logger.Info("email sent", "purchase_id", purchaseID, "subject", subject)
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatNumbers renders ticket numbers zero-padded to at least three digits.
func FormatNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = fmt.Sprintf("%03d", n)
	}
	return strings.Join(parts, ", ")
}

// LogMailer logs emails instead of sending them. Used when no provider is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, html string) error {
	m.Logger.Info("email (not sent, no provider configured)", "to", to, "subject", subject, "bytes", len(html))
	return nil
}
