package email

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/notify"
	"FuelPriceMonitor/internal/ports"
)

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Sender mails the plain-text run report.
type Sender struct {
	cfg  config.EmailConfig
	send sendFunc
}

var _ ports.Sink = (*Sender)(nil)

// NewSender validates the SMTP settings.
func NewSender(cfg config.EmailConfig) (*Sender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("sender and at least one recipient are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Sender{cfg: cfg, send: smtp.SendMail}, nil
}

func (s *Sender) Name() string { return "email" }

// Deliver sends the report. smtp.SendMail has no context support, so the
// call runs in a goroutine and ctx only bounds how long Deliver waits.
func (s *Sender) Deliver(ctx context.Context, summary domain.RunReportSummary) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := buildMessage(s.cfg.From, s.cfg.To, subject(summary), notify.RenderText(summary))

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, s.cfg.To, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail via %s: %w", addr, ctx.Err())
	}
}

func subject(s domain.RunReportSummary) string {
	subj := fmt.Sprintf("Fuel prices %s: %s", s.RunDate, s.Status)
	if s.AnomaliesFound > 0 {
		subj += fmt.Sprintf(", %d anomalies", s.AnomaliesFound)
	}
	return subj
}

func buildMessage(from string, to []string, subj, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subj)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}
