// Package compose builds outbound RFC 5322 messages.
package compose

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// Envelope is an outbound message as submitted by the client. HTML wins
// over Markdown when both are set.
type Envelope struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	HTML     string   `json:"html"`
	Markdown string   `json:"markdown,omitempty"`
}

// Validate checks recipients and body.
func (e Envelope) Validate() error {
	if len(e.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", types.ErrValidation)
	}
	for _, to := range e.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("%w: invalid recipient %q", types.ErrValidation, to)
		}
	}
	if strings.ContainsAny(e.Subject, "\r\n") {
		return fmt.Errorf("%w: subject must be a single line", types.ErrValidation)
	}
	if strings.TrimSpace(e.HTML) == "" && strings.TrimSpace(e.Markdown) == "" {
		return fmt.Errorf("%w: message body is required", types.ErrValidation)
	}
	return nil
}

// Build renders env as a multipart/alternative message from the given
// sender. The text/plain part is derived from the HTML.
func Build(from string, env Envelope, now time.Time) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	htmlBody := env.HTML
	if strings.TrimSpace(htmlBody) == "" {
		rendered, err := markdownToHTML(env.Markdown)
		if err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		htmlBody = rendered
	}

	var h mail.Header
	h.SetDate(now)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(env.Subject)

	if from != "" {
		sender, err := mail.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("parse from address %q: %w", from, err)
		}
		h.SetAddressList("From", []*mail.Address{sender})
	}

	to := make([]*mail.Address, 0, len(env.To))
	for _, a := range env.To {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		to = append(to, parsed)
	}
	h.SetAddressList("To", to)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	if err := writePart(tw, "text/plain; charset=utf-8", TextFromHTML(htmlBody)); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html; charset=utf-8", htmlBody); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.Set("Content-Type", contentType)
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close %s part: %w", contentType, err)
	}
	return nil
}

func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
