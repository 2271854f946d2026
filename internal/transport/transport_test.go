package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

func TestClassifySMTP(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		transient   bool
		bounced     bool
		unavailable bool
	}{
		{name: "mailbox busy", err: &textproto.Error{Code: 450, Msg: "mailbox busy"}, transient: true},
		{name: "greylisted", err: &textproto.Error{Code: 421, Msg: "try later"}, transient: true},
		{name: "unknown user", err: &textproto.Error{Code: 550, Msg: "no such user"}, bounced: true},
		{name: "bad mailbox name", err: &textproto.Error{Code: 553, Msg: "mailbox name not allowed"}, bounced: true},
		{name: "policy reject", err: &textproto.Error{Code: 554, Msg: "rejected"}},
		{name: "deadline", err: context.DeadlineExceeded, transient: true},
		{name: "dial refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, unavailable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySMTP(tt.err)
			assert.Equal(t, tt.transient, appErrors.IsTransient(got), "transient")
			assert.Equal(t, tt.unavailable, errors.Is(got, appErrors.ErrTransportUnavailable), "unavailable")

			var fe *appErrors.FatalDeliveryError
			isFatal := errors.As(got, &fe)
			assert.Equal(t, !tt.transient && !tt.unavailable, isFatal, "fatal")
			if isFatal {
				assert.Equal(t, tt.bounced, fe.Bounced, "bounced")
			}
		})
	}
}

func TestClassifyResend(t *testing.T) {
	assert.True(t, appErrors.IsTransient(classifyResend(fmt.Errorf("429 rate limit exceeded"))))
	assert.True(t, errors.Is(classifyResend(fmt.Errorf("401 invalid api key")), appErrors.ErrTransportUnavailable))

	var fe *appErrors.FatalDeliveryError
	require.True(t, errors.As(classifyResend(fmt.Errorf("422 invalid `to` field")), &fe))
	assert.True(t, fe.Bounced)
}

func TestSMTPSender_InvalidAddressBounces(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"})
	err := s.Send(context.Background(), Message{To: "not-an-address", Subject: "s", Body: "b"})

	var fe *appErrors.FatalDeliveryError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Bounced)
}

func TestSMTPSender_BuildAddsTrackingPixel(t *testing.T) {
	links := tracking.Links{BaseURL: "https://t.example.com", Secret: "s3cret"}
	s := NewSMTPSender(SMTPConfig{From: "noreply@example.com", Links: links})
	m, err := s.build(Message{CampaignID: 7, MessageID: "abc", To: "a@example.com", Subject: "件名", Body: "本文"})
	require.NoError(t, err)

	var sb strings.Builder
	_, err = m.WriteTo(&sb)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "https://t.example.com/t/o/abc")
	assert.Equal(t, []string{"7"}, m.GetHeader("X-Campaign-ID"))
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := config.Config{EmailProvider: "log"}
	s, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	cfg.EmailProvider = "resend"
	_, err = New(cfg, logger.Nop())
	assert.Error(t, err)

	cfg.EmailProvider = "carrier-pigeon"
	_, err = New(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestLogSender_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewLogSender(logger.Nop()).Send(ctx, Message{To: "a@example.com"})
	assert.True(t, appErrors.IsTransient(err))
}
