// Package types defines core data structures for orai.
package types

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Error taxonomy. Callers classify with errors.Is; concrete errors wrap one
// of these with context.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrProvider     = errors.New("provider failure")
	ErrStorage      = errors.New("storage failure")
)

// Credentials is the delegated authorization material for one mailbox.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the credentials carry something usable.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// User is a mailbox owner, keyed by the provider's stable account id.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Sender is the parsed From header. Either part may be empty.
type Sender struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"email,omitempty"`
}

// Message is a cached provider message.
type Message struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	ProviderMessageID string    `json:"providerMessageId"`
	ProviderThreadID  string    `json:"providerThreadId"`
	Subject           string    `json:"subject"`
	Snippet           string    `json:"snippet"`
	Sender            Sender    `json:"fromData"`
	BodyRef           string    `json:"-"`
	IsRead            bool      `json:"isRead"`
	IsArchived        bool      `json:"isArchived"`
	IsSpam            bool      `json:"isSpam"`
	Labels            []string  `json:"labels"`
	ReceivedAt        time.Time `json:"receivedAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasLabel reports whether the message carries the given provider label.
func (m *Message) HasLabel(label string) bool {
	return slices.Contains(m.Labels, label)
}

// RequestScope is what an authenticated request carries downstream.
type RequestScope struct {
	SessionID   string
	OwnerID     string
	Email       string
	Credentials Credentials
}

// Action is a local mutation that is propagated to the provider.
type Action string

// Action constants.
const (
	ActionArchive Action = "archive"
	ActionTrash   Action = "trash"
	ActionSpam    Action = "spam"
)

// ValidActions is the set of allowed action values.
var ValidActions = []Action{ActionArchive, ActionTrash, ActionSpam}

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range ValidActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrValidation, s)
}

// Provider label ids the cache derives flags from.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
	LabelSpam   = "SPAM"
)

// SyncResult holds the result of syncing a single mailbox.
type SyncResult struct {
	OwnerID string   `json:"ownerId"`
	Listed  int      `json:"listed"`
	Stored  int      `json:"stored"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
	Error   string   `json:"error,omitempty"`
}
