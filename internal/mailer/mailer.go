// Package mailer sends rendered reports over an authenticated STARTTLS
// SMTP connection.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/brensch/sitereports/internal/config"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/render"
	"github.com/wneessen/go-mail"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Transport opens one SMTP connection per session.
type Transport struct {
	cfg    config.SMTP
	logger *slog.Logger
}

// New returns a transport for the given endpoint.
func New(cfg config.SMTP, logger *slog.Logger) *Transport {
	return &Transport{cfg: cfg, logger: logger.With(slog.String("component", "mailer"))}
}

func (t *Transport) options() []mail.Option {
	auth := mail.SMTPAuthLogin
	if strings.EqualFold(t.cfg.Auth, "plain") {
		auth = mail.SMTPAuthPlain
	}
	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(auth),
		mail.WithUsername(t.cfg.Username),
		mail.WithPassword(t.cfg.Password),
	}
	if t.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(t.cfg.Timeout))
	}
	return opts
}

// Open connects and authenticates. It implements delivery.Transport.
func (t *Transport) Open(ctx context.Context) (delivery.Session, error) {
	client, err := mail.NewClient(t.cfg.Host, t.options()...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", t.cfg.Host, t.cfg.Port, err)
	}
	t.logger.Debug("SMTP session opened.", slog.String("host", t.cfg.Host), slog.Int("port", t.cfg.Port))
	return &session{client: client, from: t.cfg.From, logger: t.logger}, nil
}

type session struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

func (s *session) Send(ctx context.Context, msg render.Message) error {
	m, err := BuildMessage(s.from, msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Send(m); err != nil {
		return fmt.Errorf("send %s: %w", msg.AttachmentName, err)
	}
	return nil
}

func (s *session) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close smtp session: %w", err)
	}
	s.logger.Debug("SMTP session closed.")
	return nil
}

// BuildMessage assembles the MIME message: plain text body, optional HTML
// alternative with embedded assets, and the workbook attachment.
func BuildMessage(from string, msg render.Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("message has no recipient")
	}
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %v: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.PlainText)

	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
		for _, asset := range msg.Inline {
			err := m.EmbedReader(asset.Filename, bytes.NewReader(asset.Data),
				mail.WithFileContentType(mail.ContentType(asset.ContentType)),
				mail.WithFileContentID(asset.CID))
			if err != nil {
				return nil, fmt.Errorf("embed %s: %w", asset.Filename, err)
			}
		}
	}

	if msg.AttachmentPath != "" {
		data, err := os.ReadFile(msg.AttachmentPath)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := msg.AttachmentName
		if name == "" {
			name = "rapport.xlsx"
		}
		if err := m.AttachReader(name, bytes.NewReader(data), mail.WithFileContentType(xlsxContentType)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
	}
	return m, nil
}
