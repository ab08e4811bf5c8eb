// Package gmail is the provider adapter for orai: it exposes the handful of
// Gmail API operations the synchronizer and mutation paths need, behind the
// Mailbox interface.
package gmail

import (
	"encoding/base64"
	"strings"

	gm "google.golang.org/api/gmail/v1"
)

// Message is a provider message converted out of the Gmail API types.
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate int64 // milliseconds since epoch
	Payload      *Part
}

// Part is one MIME part. Data is the raw base64url body as delivered by
// the API.
type Part struct {
	MimeType string
	Filename string
	Headers  map[string]string
	Data     string
	Parts    []*Part
}

// Header returns a top-level header, or "" when absent or there is no
// payload.
func (m *Message) Header(name string) string {
	if m.Payload == nil {
		return ""
	}
	if v, ok := m.Payload.Headers[name]; ok {
		return v
	}
	// Header names are case-insensitive.
	for k, v := range m.Payload.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HTMLBody returns the decoded body, preferring the first text/html part
// found depth-first and falling back to the top-level payload body.
func (m *Message) HTMLBody() string {
	if m.Payload == nil {
		return ""
	}
	if part := findPart(m.Payload, "text/html"); part != nil {
		if decoded, err := DecodeBase64URL(part.Data); err == nil && decoded != "" {
			return decoded
		}
	}
	if m.Payload.Data != "" {
		if decoded, err := DecodeBase64URL(m.Payload.Data); err == nil {
			return decoded
		}
	}
	return ""
}

// findPart returns the first part with mimeType and a non-empty body.
func findPart(p *Part, mimeType string) *Part {
	for _, part := range p.Parts {
		if part.MimeType == mimeType && part.Data != "" {
			return part
		}
		if len(part.Parts) > 0 {
			if found := findPart(part, mimeType); found != nil {
				return found
			}
		}
	}
	return nil
}

// convertMessage copies the fields orai uses out of an API message.
func convertMessage(msg *gm.Message) *Message {
	return &Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(p *gm.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{
		MimeType: p.MimeType,
		Filename: p.Filename,
		Headers:  headerMap(p.Headers),
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// headerMap converts Gmail API headers into a simple key-value map. The
// first occurrence of a repeated header wins.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, ok := m[h.Name]; !ok {
			m[h.Name] = h.Value
		}
	}
	return m
}

// DecodeBase64URL decodes Gmail's base64url content, with or without
// padding.
func DecodeBase64URL(data string) (string, error) {
	data = strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
