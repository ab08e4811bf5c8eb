package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Hexploration-Inc/orai/internal/types"
)

func TestState(t *testing.T) {
	tests := []struct {
		msg  types.Message
		want string
	}{
		{types.Message{IsSpam: true, IsArchived: true}, "spam"},
		{types.Message{IsArchived: true, IsRead: false}, "archived"},
		{types.Message{}, "unread"},
		{types.Message{IsRead: true}, "read"},
	}
	for _, tt := range tests {
		if got := State(&tt.msg); got != tt.want {
			t.Fatalf("State(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := map[time.Duration]string{
		10 * time.Second:    "just now",
		5 * time.Minute:     "5m ago",
		3 * time.Hour:       "3h ago",
		48 * time.Hour:      "2d ago",
		30 * 24 * time.Hour: "Feb 8",
	}
	for ago, want := range tests {
		if got := TimeAgo(now.Add(-ago), now); got != want {
			t.Fatalf("TimeAgo(-%s) = %q, want %q", ago, got, want)
		}
	}
	if TimeAgo(time.Time{}, now) != "" {
		t.Fatalf("zero time should render empty")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo wörld", 8); got != "héllo..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate = %q", got)
	}
}

func TestSenderLabel(t *testing.T) {
	if SenderLabel(types.Sender{Name: "Ann", Address: "a@b.c"}) != "Ann" {
		t.Fatalf("expected name")
	}
	if SenderLabel(types.Sender{Address: "a@b.c"}) != "a@b.c" {
		t.Fatalf("expected address")
	}
}

func TestBody(t *testing.T) {
	var buf bytes.Buffer
	Body(&buf, "one\ntwo\nthree", 2)
	out := buf.String()
	if !strings.Contains(out, "one") || !strings.Contains(out, "two") || strings.Contains(out, "three") {
		t.Fatalf("unexpected body output %q", out)
	}
	if !strings.Contains(out, "1 more lines") {
		t.Fatalf("missing overflow marker %q", out)
	}
}
