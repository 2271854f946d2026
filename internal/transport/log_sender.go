package transport

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It is the
// default provider in development.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "log_sender").Logger()}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	s.log.Info().
		Int64("campaign_id", msg.CampaignID).
		Int64("recipient_id", msg.RecipientID).
		Str("message_id", msg.MessageID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email delivered to log")
	return nil
}
