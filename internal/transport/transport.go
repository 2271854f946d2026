// Package transport delivers rendered campaign messages to a mail provider
// and classifies provider failures into transient, fatal, bounced and
// unavailable.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

// Message is a single rendered email for one recipient.
type Message struct {
	CampaignID  int64
	RecipientID int64
	// MessageID identifies the delivery in tracking links and provider headers.
	MessageID string
	To        string
	ToName    string
	Subject   string
	Body      string
}

// Sender delivers one message. Returned errors are one of
// *appErrors.TransientDeliveryError, *appErrors.FatalDeliveryError or an
// error wrapping appErrors.ErrTransportUnavailable.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// New returns the sender selected by EMAIL_PROVIDER.
func New(cfg config.Config, log zerolog.Logger) (Sender, error) {
	links := tracking.Links{BaseURL: cfg.TrackingBaseURL, Secret: cfg.TrackingSecret}
	switch cfg.EmailProvider {
	case "smtp":
		return NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
			Links:    links,
		}), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
		return NewResendSender(cfg.ResendAPIKey, cfg.MailFrom, cfg.MailFromName, links), nil
	case "log", "":
		return NewLogSender(log), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
}

func transient(err error) error { return &appErrors.TransientDeliveryError{Err: err} }

func fatal(err error) error { return &appErrors.FatalDeliveryError{Err: err} }

func bounced(err error) error { return &appErrors.FatalDeliveryError{Err: err, Bounced: true} }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", appErrors.ErrTransportUnavailable, err)
}

// classifyNetwork handles the failures common to every provider. ok is false
// when err is not a network or context failure.
func classifyNetwork(err error) (error, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return transient(err), true
	}
	if errors.Is(err, context.Canceled) {
		return err, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return unavailable(err), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return transient(err), true
		}
		return unavailable(err), true
	}
	return nil, false
}

func fromHeader(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

func idHeader(id int64) string { return strconv.FormatInt(id, 10) }
