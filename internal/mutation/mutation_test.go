package mutation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/compose"
	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/types"
)

type call struct {
	op    string
	id    string
	delta gmail.LabelDelta
}

type fakeMailbox struct {
	calls   []call
	err     error
	sent    []byte
	sendErr error
}

func (f *fakeMailbox) ListMessageIDs(ctx context.Context, w gmail.Window) ([]string, error) {
	return nil, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	return nil, types.ErrNotFound
}

func (f *fakeMailbox) ApplyLabelDelta(ctx context.Context, id string, delta gmail.LabelDelta) error {
	f.calls = append(f.calls, call{op: "modify", id: id, delta: delta})
	return f.err
}

func (f *fakeMailbox) Trash(ctx context.Context, id string) error {
	f.calls = append(f.calls, call{op: "trash", id: id})
	return f.err
}

func (f *fakeMailbox) Send(ctx context.Context, raw []byte) (string, error) {
	f.calls = append(f.calls, call{op: "send"})
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = raw
	return "sent-1", nil
}

func (f *fakeMailbox) Profile(ctx context.Context) (gmail.Profile, error) {
	return gmail.Profile{}, nil
}

type fakeOpener struct{ mb *fakeMailbox }

func (o fakeOpener) Open(ctx context.Context, creds types.Credentials) (gmail.Mailbox, error) {
	return o.mb, nil
}

// brokenStore fails every flag write.
type brokenStore struct{ *db.DB }

func (b brokenStore) SetArchived(ctx context.Context, ownerID, id string, labels []string) error {
	return errors.New("disk full")
}

var scope = types.RequestScope{
	SessionID:   "s1",
	OwnerID:     "owner-1",
	Email:       "ann@example.com",
	Credentials: types.Credentials{AccessToken: "tok"},
}

var providerDown = &gmail.Error{Op: "modify", Code: 503, Transient: true, Err: errors.New("backend error")}

type harness struct {
	store *db.DB
	blobs blob.Store
	mb    *fakeMailbox
	logs  *bytes.Buffer
	msg   *types.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(db.MemoryPath)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.UpsertUser(ctx, types.User{ID: "owner-1", Email: "ann@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := store.UpsertUser(ctx, types.User{ID: "owner-2", Email: "bob@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	blobs, err := blob.OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	key := blob.Key("owner-1", "pm-1")
	if err := blobs.Put(ctx, key, []byte("<p>hi</p>")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	msg := &types.Message{
		OwnerID:           "owner-1",
		ProviderMessageID: "pm-1",
		Subject:           "Hello",
		BodyRef:           key,
		Labels:            []string{"INBOX", "UNREAD"},
		ReceivedAt:        time.Now(),
	}
	if _, err := store.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	return &harness{store: store, blobs: blobs, mb: &fakeMailbox{}, logs: &bytes.Buffer{}, msg: msg}
}

func (h *harness) propagator(store Store) *Propagator {
	logger := slog.New(slog.NewTextHandler(h.logs, nil))
	return New(store, h.blobs, fakeOpener{mb: h.mb}, logger, nil)
}

func TestApply_TrashRemovesRecordAndBody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	got, err := h.propagator(h.store).Apply(ctx, scope, h.msg.ID, types.ActionTrash)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil message after trash, got %+v", got)
	}
	if len(h.mb.calls) != 1 || h.mb.calls[0].op != "trash" || h.mb.calls[0].id != "pm-1" {
		t.Fatalf("unexpected provider calls %+v", h.mb.calls)
	}
	if _, err := h.store.GetMessage(ctx, "owner-1", h.msg.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
	list, err := h.store.ListMessages(ctx, "owner-1", db.ListFilter{View: db.ViewAll})
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %d (%v)", len(list), err)
	}
	if _, err := h.blobs.Get(ctx, h.msg.BodyRef); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected body deleted, got %v", err)
	}
}

func TestApply_TrashProviderFailureKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.mb.err = providerDown
	ctx := context.Background()
	_, err := h.propagator(h.store).Apply(ctx, scope, h.msg.ID, types.ActionTrash)
	if !errors.Is(err, types.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := h.store.GetMessage(ctx, "owner-1", h.msg.ID); err != nil {
		t.Fatalf("record should survive: %v", err)
	}
	if _, err := h.blobs.Get(ctx, h.msg.BodyRef); err != nil {
		t.Fatalf("body should survive: %v", err)
	}
}

func TestApply_Archive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	got, err := h.propagator(h.store).Apply(ctx, scope, h.msg.ID, types.ActionArchive)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.IsArchived || got.HasLabel("INBOX") || !got.HasLabel("UNREAD") {
		t.Fatalf("unexpected result %+v", got)
	}
	d := h.mb.calls[0].delta
	if len(d.Add) != 0 || len(d.Remove) != 1 || d.Remove[0] != "INBOX" {
		t.Fatalf("unexpected delta %+v", d)
	}
	stored, _ := h.store.GetMessage(ctx, "owner-1", h.msg.ID)
	if !stored.IsArchived || stored.HasLabel("INBOX") {
		t.Fatalf("cache not updated: %+v", stored)
	}
}

func TestApply_ArchiveProviderFailureLeavesFlag(t *testing.T) {
	h := newHarness(t)
	h.mb.err = providerDown
	ctx := context.Background()
	if _, err := h.propagator(h.store).Apply(ctx, scope, h.msg.ID, types.ActionArchive); !errors.Is(err, types.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	stored, _ := h.store.GetMessage(ctx, "owner-1", h.msg.ID)
	if stored.IsArchived {
		t.Fatalf("isArchived flipped despite provider failure")
	}
}

func TestApply_Spam(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	got, err := h.propagator(h.store).Apply(ctx, scope, h.msg.ID, types.ActionSpam)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !got.IsSpam || !got.IsArchived || !got.HasLabel("SPAM") || got.HasLabel("INBOX") {
		t.Fatalf("unexpected result %+v", got)
	}
	d := h.mb.calls[0].delta
	if len(d.Add) != 1 || d.Add[0] != "SPAM" || len(d.Remove) != 1 || d.Remove[0] != "INBOX" {
		t.Fatalf("unexpected delta %+v", d)
	}
	spam, _ := h.store.ListMessages(ctx, "owner-1", db.ListFilter{View: db.ViewSpam})
	if len(spam) != 1 {
		t.Fatalf("expected one spam message, got %d", len(spam))
	}
}

func TestApply_NoRemoteCallForUnknownInput(t *testing.T) {
	h := newHarness(t)
	p := h.propagator(h.store)
	ctx := context.Background()

	if _, err := p.Apply(ctx, scope, h.msg.ID, types.Action("star")); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := p.Apply(ctx, scope, "missing", types.ActionTrash); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	other := scope
	other.OwnerID = "owner-2"
	if _, err := p.Apply(ctx, other, h.msg.ID, types.ActionArchive); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	if len(h.mb.calls) != 0 {
		t.Fatalf("expected no provider calls, got %+v", h.mb.calls)
	}
}

func TestApply_RejectedActionUsesFixedMetricLabel(t *testing.T) {
	h := newHarness(t)
	m := metrics.New(prometheus.NewRegistry())
	p := New(h.store, h.blobs, fakeOpener{mb: h.mb}, nil, m)
	ctx := context.Background()

	for _, a := range []string{"star", "snooze-until-1700000000"} {
		if _, err := p.Apply(ctx, scope, h.msg.ID, types.Action(a)); !errors.Is(err, types.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", a, err)
		}
	}
	if _, err := p.Apply(ctx, scope, h.msg.ID, types.ActionArchive); err != nil {
		t.Fatalf("archive: %v", err)
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	out := string(body)
	if !strings.Contains(out, `orai_mutations_total{action="invalid",result="error"} 2`) {
		t.Fatalf("expected rejected actions under the invalid label:\n%s", out)
	}
	if !strings.Contains(out, `orai_mutations_total{action="archive",result="ok"} 1`) {
		t.Fatalf("expected archive counted:\n%s", out)
	}
	if strings.Contains(out, `action="star"`) || strings.Contains(out, "snooze") {
		t.Fatalf("rejected input leaked into label values:\n%s", out)
	}
}

func TestApply_CacheFailureIsStorageError(t *testing.T) {
	h := newHarness(t)
	_, err := h.propagator(brokenStore{h.store}).Apply(context.Background(), scope, h.msg.ID, types.ActionArchive)
	if !errors.Is(err, types.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(h.mb.calls) != 1 {
		t.Fatalf("provider should have been called once, got %d", len(h.mb.calls))
	}
	out := h.logs.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "action=archive") || !strings.Contains(out, "owner=owner-1") {
		t.Fatalf("missing consistency warning in logs: %s", out)
	}
}

func TestSend(t *testing.T) {
	h := newHarness(t)
	p := h.propagator(h.store)
	env := compose.Envelope{To: []string{"bob@example.com"}, Subject: "Hi", HTML: "<p>Hello</p>"}
	id, err := p.Send(context.Background(), scope, env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "sent-1" {
		t.Fatalf("id = %q", id)
	}
	mr, err := mail.CreateReader(bytes.NewReader(h.mb.sent))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	from, _ := mr.Header.AddressList("From")
	if len(from) != 1 || from[0].Address != "ann@example.com" {
		t.Fatalf("From = %v", from)
	}
}

func TestSend_ValidationSkipsProvider(t *testing.T) {
	h := newHarness(t)
	_, err := h.propagator(h.store).Send(context.Background(), scope, compose.Envelope{Subject: "x", HTML: "<p>x</p>"})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.mb.calls) != 0 {
		t.Fatalf("provider called for invalid envelope")
	}
}

func TestSend_ProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.mb.sendErr = providerDown
	_, err := h.propagator(h.store).Send(context.Background(), scope, compose.Envelope{To: []string{"bob@example.com"}, HTML: "<p>x</p>"})
	if !errors.Is(err, types.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
