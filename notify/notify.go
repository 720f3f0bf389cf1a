// Package notify sends batch completion emails so sheet-driven runs
// do not finish silently.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"casaingest/config"
	"casaingest/models"
)

type SMTPNotifier struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// NotifyBatchComplete emails the run summary to the configured
// recipients. With no SMTP host or recipients it is a no-op.
func (n *SMTPNotifier) NotifyBatchComplete(ctx context.Context, summary *models.BatchSummary) error {
	if n.cfg.Host == "" || len(n.cfg.Recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Batch completado: %d propiedades procesadas exitosamente", summary.Processed)
	if summary.Failed > 0 {
		subject = fmt.Sprintf("Batch completado: %d procesadas, %d fallaron", summary.Processed, summary.Failed)
	}

	msg := buildMessage(n.cfg.From, n.cfg.Recipients, subject, buildBody(summary))

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, n.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	log.Printf("Batch notification sent to %d recipients", len(n.cfg.Recipients))
	return nil
}

func buildBody(summary *models.BatchSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Procesamiento de propiedades completado.\r\n\r\n")
	fmt.Fprintf(&b, "Total:      %d\r\n", summary.Total)
	fmt.Fprintf(&b, "Procesadas: %d\r\n", summary.Processed)
	fmt.Fprintf(&b, "Fallidas:   %d\r\n", summary.Failed)

	var failures []models.BatchItem
	for _, item := range summary.Results {
		if item.Status == "failed" {
			failures = append(failures, item)
		}
	}
	if len(failures) > 0 {
		b.WriteString("\r\nURLs con errores:\r\n")
		for _, item := range failures {
			fmt.Fprintf(&b, "- %s: %s\r\n", item.URL, item.Error)
		}
	}

	return b.String()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return []byte(b.String())
}
