package sync

import (
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// ParseSender splits a From header into display name and address. It
// accepts RFC 5322 addresses and degrades to a best-effort split of
// "Name <addr>" when the header does not parse. Either part may be empty.
func ParseSender(from string) types.Sender {
	from = strings.TrimSpace(from)
	if from == "" {
		return types.Sender{}
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return types.Sender{Name: addr.Name, Address: addr.Address}
	}

	open := strings.Index(from, "<")
	if open < 0 {
		if strings.Contains(from, "@") {
			return types.Sender{Address: from}
		}
		return types.Sender{Name: from}
	}
	s := types.Sender{Name: strings.Trim(strings.TrimSpace(from[:open]), `"`)}
	rest := from[open+1:]
	if end := strings.Index(rest, ">"); end >= 0 {
		s.Address = strings.TrimSpace(rest[:end])
	}
	return s
}

// newRecord derives a cache record from a fetched message. Flags are
// derived from labels; the body reference is filled in by the caller.
func newRecord(ownerID string, msg *gmail.Message, fallback time.Time) *types.Message {
	received := fallback
	if msg.InternalDate > 0 {
		received = time.UnixMilli(msg.InternalDate).UTC()
	}
	labels := msg.LabelIDs
	if labels == nil {
		labels = []string{}
	}
	return &types.Message{
		OwnerID:           ownerID,
		ProviderMessageID: msg.ID,
		ProviderThreadID:  msg.ThreadID,
		Subject:           msg.Header("Subject"),
		Snippet:           msg.Snippet,
		Sender:            ParseSender(msg.Header("From")),
		IsRead:            !slices.Contains(labels, types.LabelUnread),
		IsArchived:        !slices.Contains(labels, types.LabelInbox),
		IsSpam:            slices.Contains(labels, types.LabelSpam),
		Labels:            labels,
		ReceivedAt:        received,
	}
}
