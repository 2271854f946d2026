package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/badoux/checkmail"
	"github.com/yuin/goldmark"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// Links enables click rewriting and the open pixel in the HTML part.
	Links tracking.Links
}

// SMTPSender sends multipart messages built with gomail. The plain body is
// also rendered through goldmark as the HTML alternative. Each send is one
// SMTP session bounded by the caller's context.
type SMTPSender struct {
	cfg SMTPConfig
	md  goldmark.Markdown
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, md: newMarkdown()}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := checkmail.ValidateFormat(msg.To); err != nil {
		return bounced(fmt.Errorf("address %q: %w", msg.To, err))
	}
	m, err := s.build(msg)
	if err != nil {
		return fatal(err)
	}
	return s.deliver(ctx, msg.To, m)
}

func (s *SMTPSender) build(msg Message) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", fromHeader(s.cfg.FromName, s.cfg.From))
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Campaign-ID", idHeader(msg.CampaignID))
	if msg.MessageID != "" {
		m.SetHeader("X-Message-ID", msg.MessageID)
	}
	m.SetBody("text/plain", msg.Body)

	htmlBody, err := renderHTML(s.md, msg.Body, s.cfg.Links, msg.MessageID)
	if err != nil {
		return nil, err
	}
	m.AddAlternative("text/html", htmlBody)
	return m, nil
}

// deliver runs the session on a connection that carries the context
// deadline and is closed when ctx ends, so nothing keeps talking to the
// server after Send has returned. A server that accepted the message but
// whose final reply never arrived still looks transient.
func (s *SMTPSender) deliver(ctx context.Context, to string, m *gomail.Message) (err error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if classified, ok := classifyNetwork(err); ok {
			return classified
		}
		return unavailable(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Port 465 speaks TLS from the first byte.
	if s.cfg.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: s.cfg.Host})
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = transient(ctx.Err())
		}
	}()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return unavailable(err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return unavailable(fmt.Errorf("starttls: %w", err))
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return unavailable(fmt.Errorf("smtp auth: %w", err))
			}
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return classifySMTP(err)
	}
	if err := c.Rcpt(to); err != nil {
		return classifySMTP(err)
	}
	w, err := c.Data()
	if err != nil {
		return classifySMTP(err)
	}
	if _, err := m.WriteTo(w); err != nil {
		return classifySMTP(err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(err)
	}
	_ = c.Quit()
	return nil
}

// classifySMTP maps SMTP reply codes: 4xx are retried, mailbox rejections
// count as bounces and the remaining 5xx replies fail the recipient.
func classifySMTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return transient(err)
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			return bounced(err)
		default:
			return fatal(err)
		}
	}
	if classified, ok := classifyNetwork(err); ok {
		return classified
	}
	return transient(err)
}
