package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"casaingest/config"
	"casaingest/models"
)

func capturingNotifier(cfg config.SMTPConfig) (*SMTPNotifier, *[][]byte) {
	n := NewSMTPNotifier(cfg)
	var sent [][]byte
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, msg)
		return nil
	}
	return n, &sent
}

func TestNotifyBatchComplete(t *testing.T) {
	n, sent := capturingNotifier(config.SMTPConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "ingest@example.com",
		Recipients: []string{"equipo@example.com"},
	})

	summary := &models.BatchSummary{
		Total:     3,
		Processed: 2,
		Failed:    1,
		Results: []models.BatchItem{
			{URL: "https://a", Status: "success"},
			{URL: "https://b", Status: "failed", Error: "fetch timeout"},
			{URL: "https://c", Status: "success"},
		},
	}

	if err := n.NotifyBatchComplete(context.Background(), summary); err != nil {
		t.Fatalf("NotifyBatchComplete failed: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*sent))
	}

	msg := string((*sent)[0])
	if !strings.Contains(msg, "Subject: Batch completado: 2 procesadas, 1 fallaron") {
		t.Errorf("subject missing failure count:\n%s", msg)
	}
	if !strings.Contains(msg, "https://b: fetch timeout") {
		t.Errorf("failed URL not listed:\n%s", msg)
	}
	if !strings.Contains(msg, "To: equipo@example.com") {
		t.Errorf("recipient missing:\n%s", msg)
	}
}

func TestNotifyAllSuccessSubject(t *testing.T) {
	n, sent := capturingNotifier(config.SMTPConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "ingest@example.com",
		Recipients: []string{"equipo@example.com"},
	})

	summary := &models.BatchSummary{Total: 2, Processed: 2}
	if err := n.NotifyBatchComplete(context.Background(), summary); err != nil {
		t.Fatalf("NotifyBatchComplete failed: %v", err)
	}

	msg := string((*sent)[0])
	if !strings.Contains(msg, "Subject: Batch completado: 2 propiedades procesadas exitosamente") {
		t.Errorf("unexpected subject:\n%s", msg)
	}
}

func TestNotifyWithoutConfigIsNoOp(t *testing.T) {
	n, sent := capturingNotifier(config.SMTPConfig{})

	if err := n.NotifyBatchComplete(context.Background(), &models.BatchSummary{Total: 1}); err != nil {
		t.Fatalf("NotifyBatchComplete failed: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(*sent))
	}
}
