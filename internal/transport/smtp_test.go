package transport

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// fakeSMTP accepts one session. With stall set it swallows the message and
// never answers the end of DATA.
type fakeSMTP struct {
	ln     net.Listener
	stall  bool
	got    chan string
	closed chan struct{}
}

func startFakeSMTP(t *testing.T, stall bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, stall: stall, got: make(chan string, 1), closed: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	defer close(f.closed)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
		case "EHLO":
			tp.PrintfLine("250-fake")
			tp.PrintfLine("250 8BITMIME")
		case "HELO", "MAIL", "RCPT", "RSET", "NOOP":
			tp.PrintfLine("250 OK")
		case "DATA":
			tp.PrintfLine("354 go ahead")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			if f.stall {
				// Wait for the client to give up; the read fails once it closes.
				_, _ = tp.ReadLine()
				return
			}
			f.got <- strings.Join(lines, "\n")
			tp.PrintfLine("250 queued")
		case "QUIT":
			tp.PrintfLine("221 bye")
			return
		default:
			tp.PrintfLine("502 unknown command")
		}
	}
}

func TestSMTPSender_DeliversOverSession(t *testing.T) {
	srv := startFakeSMTP(t, false)
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"})

	err := s.Send(context.Background(), Message{CampaignID: 3, To: "info@example.jp", Subject: "件名", Body: "本文"})
	require.NoError(t, err)

	select {
	case data := <-srv.got:
		assert.Contains(t, data, "X-Campaign-ID: 3")
		assert.Contains(t, data, "info@example.jp")
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestSMTPSender_TimeoutEndsTheSession(t *testing.T) {
	srv := startFakeSMTP(t, true)
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	started := time.Now()
	err := s.Send(ctx, Message{To: "info@example.jp", Subject: "件名", Body: "本文"})

	require.Error(t, err)
	assert.True(t, appErrors.IsTransient(err), "timeout must be retryable: %v", err)
	assert.Less(t, time.Since(started), 2*time.Second)

	// Nothing may keep the session alive after Send has returned.
	select {
	case <-srv.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after Send returned")
	}
}

func TestSMTPSender_RefusedDialIsUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@example.com"})
	err = s.Send(context.Background(), Message{To: "info@example.jp", Subject: "s", Body: "b"})
	assert.True(t, appErrors.IsUnavailable(err), "port %s: %v", strconv.Itoa(port), err)
}
