package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"eventpress/internal/dto"
)

const (
	DefaultBatchSize  = 50
	DefaultBatchDelay = time.Second
)

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	BatchSize  int
	BatchDelay time.Duration
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send SendFunc
	wait func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail, wait: sleep}
}

// Enabled reports whether an SMTP host is configured. Without one, mail is logged instead of sent.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

func (m *Mailer) SendConfirmation(ctx context.Context, msg dto.ConfirmationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := renderConfirmation(msg)
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	var invite []byte
	if msg.StartDate != nil {
		invite = calendarInvite(msg, m.cfg.From, time.Now().UTC())
	}

	subject := "Registration confirmed: " + msg.EventName
	raw, err := m.compose(msg.Email, subject, html, invite)
	if err != nil {
		return fmt.Errorf("compose confirmation: %w", err)
	}

	if err := m.deliver(msg.Email, raw); err != nil {
		m.log.Warn().Err(err).
			Str("registration_id", msg.RegistrationID).
			Msg("failed to send confirmation email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().
		Str("event_id", msg.EventID).
		Str("registration_id", msg.RegistrationID).
		Bool("smtp", m.Enabled()).
		Msg("confirmation email sent")
	return nil
}

// SendAnnouncement mails every recipient individually in batches, pausing
// between batches. Per-recipient failures are logged and skipped; only a
// cancelled context stops the run early.
func (m *Mailer) SendAnnouncement(ctx context.Context, msg dto.AnnouncementMessage) (int, error) {
	sent := 0
	for start := 0; start < len(msg.Recipients); start += m.cfg.BatchSize {
		if start > 0 {
			if err := m.wait(ctx, m.cfg.BatchDelay); err != nil {
				return sent, err
			}
		}

		end := min(start+m.cfg.BatchSize, len(msg.Recipients))
		for _, rcpt := range msg.Recipients[start:end] {
			if err := ctx.Err(); err != nil {
				return sent, err
			}

			html, err := renderAnnouncement(msg, rcpt)
			if err != nil {
				return sent, fmt.Errorf("render announcement: %w", err)
			}
			raw, err := m.compose(rcpt.Email, msg.Subject, html, nil)
			if err != nil {
				return sent, fmt.Errorf("compose announcement: %w", err)
			}
			if err := m.deliver(rcpt.Email, raw); err != nil {
				m.log.Warn().Err(err).
					Str("announcement_id", msg.AnnouncementID).
					Msg("failed to send announcement to recipient")
				continue
			}
			sent++
		}
	}

	m.log.Info().
		Str("event_id", msg.EventID).
		Str("announcement_id", msg.AnnouncementID).
		Int("sent", sent).
		Int("recipients", len(msg.Recipients)).
		Msg("announcement delivered")
	return sent, nil
}

func (m *Mailer) deliver(to string, raw []byte) error {
	if !m.Enabled() {
		m.log.Info().Int("bytes", len(raw)).Msg("SMTP not configured, email logged instead of sent")
		return nil
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return m.send(addr, auth, m.cfg.From, []string{to}, raw)
}

// compose builds a multipart/mixed message with an HTML body and an
// optional text/calendar invite.
func (m *Mailer) compose(to, subject string, html, invite []byte) ([]byte, error) {
	if to == "" {
		return nil, errors.New("empty recipient")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(html); err != nil {
		return nil, err
	}

	if invite != nil {
		part, err = mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":        {`text/calendar; charset=UTF-8; method=REQUEST; name="invite.ics"`},
			"Content-Disposition": {`attachment; filename="invite.ics"`},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(invite); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&out, "To: %s\r\n", to)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
