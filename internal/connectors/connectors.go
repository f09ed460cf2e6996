// Package connectors fetches BOM e-mails from a mailbox and stores the raw
// messages for the pipeline.
package connectors

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"partsmatch/internal"
	"partsmatch/internal/bom"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// MessageFromRaw fills a fetched message from its RFC 822 headers. fallbackID
// is used when the message has no Message-ID, received when it has no
// readable Date.
func MessageFromRaw(provider, fallbackID string, raw []byte, received time.Time) (internal.FetchedMailMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.FetchedMailMessage{}, fmt.Errorf("parse %s message %s: %w", provider, fallbackID, err)
	}
	if date, err := env.Date(); err == nil {
		received = date
	}
	messageID := strings.TrimSpace(env.GetHeader("Message-ID"))
	if messageID == "" {
		messageID = fallbackID
	}
	return internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  messageID,
		Subject:    env.GetHeader("Subject"),
		From:       env.GetHeader("From"),
		ReceivedAt: received.UTC().Format(time.RFC3339),
		Raw:        raw,
	}, nil
}

// BOMAttachments lists the attachment names of raw that the BOM reader
// understands.
func BOMAttachments(raw []byte) []string {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	var out []string
	for _, att := range env.Attachments {
		if bom.IsBOMAttachment(att.FileName) {
			out = append(out, att.FileName)
		}
	}
	return out
}
