package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/Hexploration-Inc/orai/internal/types"
)

type staticTokens struct{}

func (staticTokens) TokenSource(ctx context.Context, creds types.Credentials) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newTestMailbox(t *testing.T, h http.Handler) Mailbox {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(staticTokens{}, nil,
		WithAPIOptions(option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())),
		WithRetryPolicy(RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	)
	mb, err := c.Open(context.Background(), types.Credentials{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mb
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestOpen_RejectsEmptyCredentials(t *testing.T) {
	c := NewClient(staticTokens{}, nil)
	if _, err := c.Open(context.Background(), types.Credentials{}); !errors.Is(err, types.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if c.BreakerState() != "closed" {
		t.Fatalf("expected closed breaker, got %s", c.BreakerState())
	}
}

func TestListMessageIDs(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "category:primary" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("maxResults") != "100" {
			t.Errorf("unexpected maxResults %q", r.URL.Query().Get("maxResults"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}},
		})
	}))

	ids, err := mb.ListMessageIDs(context.Background(), Window{Max: 100, Query: "category:primary"})
	if err != nil {
		t.Fatalf("ListMessageIDs: %v", err)
	}
	if strings.Join(ids, ",") != "m1,m2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestGetMessage_ConvertsPayload(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "full" {
			t.Errorf("expected format=full, got %q", r.URL.Query().Get("format"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"labelIds":     []string{"INBOX", "UNREAD"},
			"snippet":      "hello",
			"internalDate": "1700000000000",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Hi"},
					{"name": "From", "value": "Ann <ann@example.com>"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]string{"data": b64("plain")}},
					{"mimeType": "text/html", "body": map[string]string{"data": b64("<p>html</p>")}},
				},
			},
		})
	}))

	msg, err := mb.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.ThreadID != "t1" || msg.InternalDate != 1700000000000 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Header("subject") != "Hi" {
		t.Fatalf("expected case-insensitive header lookup, got %q", msg.Header("subject"))
	}
	if msg.HTMLBody() != "<p>html</p>" {
		t.Fatalf("expected html body, got %q", msg.HTMLBody())
	}
}

func TestGetMessage_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"code": 404, "message": "Not Found"}})
	}))

	_, err := mb.GetMessage(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) || !errors.Is(err, types.ErrProvider) {
		t.Fatalf("expected not found provider error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 call, got %d", n)
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	var calls int32
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"code": 503, "message": "busy"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}))

	if err := mb.Trash(context.Background(), "m1"); err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestTransientFailureExhaustsRetries(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"code": 500, "message": "down"}})
	}))

	err := mb.Trash(context.Background(), "m1")
	var perr *Error
	if !errors.As(err, &perr) || !perr.Transient || perr.Code != 500 {
		t.Fatalf("expected transient provider error, got %v", err)
	}
}

func TestApplyLabelDelta(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/gmail/v1/users/me/messages/m1/modify" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			AddLabelIds    []string `json:"addLabelIds"`
			RemoveLabelIds []string `json:"removeLabelIds"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if strings.Join(body.AddLabelIds, ",") != "SPAM" || strings.Join(body.RemoveLabelIds, ",") != "INBOX" {
			t.Errorf("unexpected delta %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "m1"})
	}))

	if err := mb.ApplyLabelDelta(context.Background(), "m1", LabelDelta{Add: []string{"SPAM"}, Remove: []string{"INBOX"}}); err != nil {
		t.Fatalf("ApplyLabelDelta: %v", err)
	}
}

func TestSendEncodesRaw(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Raw string `json:"raw"`
		}
		json.Unmarshal(raw, &body)
		decoded, err := base64.URLEncoding.DecodeString(body.Raw)
		if err != nil || string(decoded) != "Subject: x\r\n\r\nbody" {
			t.Errorf("unexpected raw %q (%v)", decoded, err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "sent-1"})
	}))

	id, err := mb.Send(context.Background(), []byte("Subject: x\r\n\r\nbody"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "sent-1" {
		t.Fatalf("expected sent-1, got %q", id)
	}
}

func TestProfile(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/v2/userinfo":
			writeJSON(w, http.StatusOK, map[string]any{"id": "g-123", "email": "ann@example.com"})
		case "/gmail/v1/users/me/profile":
			writeJSON(w, http.StatusOK, map[string]any{"emailAddress": "ann@example.com", "messagesTotal": 42, "threadsTotal": 7})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	p, err := mb.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.ID != "g-123" || p.Email != "ann@example.com" || p.MessagesTotal != 42 || p.ThreadsTotal != 7 {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestHTMLBody_FallsBackToPayload(t *testing.T) {
	msg := &Message{Payload: &Part{MimeType: "text/plain", Data: strings.TrimRight(b64("just text"), "=")}}
	if got := msg.HTMLBody(); got != "just text" {
		t.Fatalf("expected payload fallback, got %q", got)
	}
	nested := &Message{Payload: &Part{
		MimeType: "multipart/mixed",
		Parts: []*Part{{
			MimeType: "multipart/alternative",
			Parts:    []*Part{{MimeType: "text/html", Data: b64("<b>deep</b>")}},
		}},
	}}
	if got := nested.HTMLBody(); got != "<b>deep</b>" {
		t.Fatalf("expected nested html, got %q", got)
	}
	if (&Message{}).HTMLBody() != "" {
		t.Fatalf("expected empty body without payload")
	}
}
