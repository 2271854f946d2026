package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/yuin/goldmark"

	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
	links  tracking.Links
	md     goldmark.Markdown
}

func NewResendSender(apiKey, from, fromName string, links tracking.Links) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   fromHeader(fromName, from),
		links:  links,
		md:     newMarkdown(),
	}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	htmlBody, err := renderHTML(s.md, msg.Body, s.links, msg.MessageID)
	if err != nil {
		return fatal(err)
	}

	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    htmlBody,
		Text:    msg.Body,
		Headers: map[string]string{
			"X-Campaign-ID": idHeader(msg.CampaignID),
			"X-Message-ID":  msg.MessageID,
		},
	}
	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return classifyResend(fmt.Errorf("resend: failed to send email: %w", err))
	}
	return nil
}

// classifyResend treats throttling and server-side errors as retryable and
// rejected recipients as bounces.
func classifyResend(err error) error {
	if classified, ok := classifyNetwork(err); ok {
		return classified
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "429"), strings.Contains(text, "rate limit"),
		strings.Contains(text, "500"), strings.Contains(text, "502"), strings.Contains(text, "503"):
		return transient(err)
	case strings.Contains(text, "invalid `to`"), strings.Contains(text, "invalid to"),
		strings.Contains(text, "recipient"):
		return bounced(err)
	case strings.Contains(text, "401"), strings.Contains(text, "403"), strings.Contains(text, "api key"):
		return unavailable(err)
	}
	return fatal(err)
}
