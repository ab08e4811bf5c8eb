package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// MaxWindow is the largest page the list endpoint returns.
const MaxWindow = 500

// Window selects which message ids a listing returns.
type Window struct {
	Max   int64
	Query string
}

// LabelDelta adds and removes label ids in one call.
type LabelDelta struct {
	Add    []string
	Remove []string
}

// Profile identifies the mailbox owner.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
}

// Mailbox is one owner's view of the provider.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, w Window) ([]string, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ApplyLabelDelta(ctx context.Context, id string, delta LabelDelta) error
	Trash(ctx context.Context, id string) error
	Send(ctx context.Context, raw []byte) (string, error)
	Profile(ctx context.Context) (Profile, error)
}

// Opener builds a Mailbox from credentials. A Mailbox is bound to one set
// of credentials and is never shared across owners.
type Opener interface {
	Open(ctx context.Context, creds types.Credentials) (Mailbox, error)
}

// TokenSourcer turns stored credentials into a refreshing token source.
type TokenSourcer interface {
	TokenSource(ctx context.Context, creds types.Credentials) oauth2.TokenSource
}

// Client is the Gmail Opener. The circuit breaker is shared by every
// Mailbox it opens.
type Client struct {
	tokens  TokenSourcer
	apiOpts []option.ClientOption
	retry   RetryPolicy
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithAPIOptions appends Google API client options to every service.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, opts...) }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithMetrics records provider calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Gmail opener.
func NewClient(tokens TokenSourcer, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		tokens: tokens,
		retry:  DefaultRetryPolicy,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cb = newBreaker(logger)
	return c
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// Open returns a Mailbox authorized with creds.
func (c *Client) Open(ctx context.Context, creds types.Credentials) (Mailbox, error) {
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: empty credentials", types.ErrUnauthorized)
	}
	opts := []option.ClientOption{option.WithTokenSource(c.tokens.TokenSource(ctx, creds))}
	opts = append(opts, c.apiOpts...)

	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, wrapError("new service", err)
	}
	ui, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, wrapError("new userinfo service", err)
	}
	return &mailbox{client: c, svc: svc, userinfo: ui}, nil
}

type mailbox struct {
	client   *Client
	svc      *gm.Service
	userinfo *oauth2api.Service
}

func (m *mailbox) ListMessageIDs(ctx context.Context, w Window) ([]string, error) {
	limit := w.Max
	if limit <= 0 || limit > MaxWindow {
		limit = MaxWindow
	}
	var resp *gm.ListMessagesResponse
	err := m.client.execute(ctx, "list", func() error {
		call := m.svc.Users.Messages.List("me").MaxResults(limit).Context(ctx)
		if w.Query != "" {
			call = call.Q(w.Query)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

func (m *mailbox) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg *gm.Message
	err := m.client.execute(ctx, "get", func() error {
		var err error
		msg, err = m.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

func (m *mailbox) ApplyLabelDelta(ctx context.Context, id string, delta LabelDelta) error {
	req := &gm.ModifyMessageRequest{
		AddLabelIds:    delta.Add,
		RemoveLabelIds: delta.Remove,
	}
	return m.client.execute(ctx, "modify", func() error {
		_, err := m.svc.Users.Messages.Modify("me", id, req).Context(ctx).Do()
		return err
	})
}

func (m *mailbox) Trash(ctx context.Context, id string) error {
	return m.client.execute(ctx, "trash", func() error {
		_, err := m.svc.Users.Messages.Trash("me", id).Context(ctx).Do()
		return err
	})
}

func (m *mailbox) Send(ctx context.Context, raw []byte) (string, error) {
	msg := &gm.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	var sent *gm.Message
	err := m.client.execute(ctx, "send", func() error {
		var err error
		sent, err = m.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// Profile combines the stable account id from userinfo with the mailbox
// totals from users.getProfile.
func (m *mailbox) Profile(ctx context.Context) (Profile, error) {
	var info *oauth2api.Userinfo
	err := m.client.execute(ctx, "userinfo", func() error {
		var err error
		info, err = m.userinfo.Userinfo.Get().Context(ctx).Do()
		return err
	})
	if err != nil {
		return Profile{}, err
	}

	var gp *gm.Profile
	err = m.client.execute(ctx, "profile", func() error {
		var err error
		gp, err = m.svc.Users.GetProfile("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return Profile{}, err
	}

	email := gp.EmailAddress
	if email == "" {
		email = info.Email
	}
	return Profile{
		ID:            info.Id,
		Email:         email,
		MessagesTotal: gp.MessagesTotal,
		ThreadsTotal:  gp.ThreadsTotal,
	}, nil
}
