package telegram

import (
	"strings"
	"testing"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/config"

	"github.com/google/go-cmp/cmp"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		in          string
		wantKind    string
		wantContent string
	}{
		{"What is 25 * 13?", api.KindQuestion, "What is 25 * 13?"},
		{"/start", api.KindHistory, ""},
		{"/key  gsk_abc ", api.KindCredential, "gsk_abc"},
		{"/key@PolymathBot gsk_abc", api.KindCredential, "gsk_abc"},
		{"/reset", api.KindReset, ""},
		{"/cancel", api.KindCancel, ""},
		{"/ask Who discovered gravity?", api.KindQuestion, "Who discovered gravity?"},
		{"/unknown thing", api.KindQuestion, "/unknown thing"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, content := command(tt.in)
			if kind != tt.wantKind || content != tt.wantContent {
				t.Fatalf("got (%q, %q) want (%q, %q)", kind, content, tt.wantKind, tt.wantContent)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	if diff := cmp.Diff([]string{"abc"}, splitMessage("abc", 10)); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff([]string{"ab", "cd", "e"}, splitMessage("abcde", 2)); diff != "" {
		t.Fatal(diff)
	}
	// Multi-byte runes are never cut in half.
	parts := splitMessage(strings.Repeat("é", 5), 2)
	if len(parts) != 3 || parts[0] != "éé" {
		t.Fatalf("got %q", parts)
	}
}

func TestFormatHistory(t *testing.T) {
	got := formatHistory([]chat.Record{
		{Role: chat.RoleAssistant, Content: "Hello"},
		{Role: chat.RoleUser, Content: "What is 2+2?"},
		{Role: chat.RoleAssistant, Content: "4"},
	})
	want := "🤖 Hello\n\n👤 What is 2+2?\n\n🤖 4"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFactoryValidation(t *testing.T) {
	f := &TelegramFactory{}
	if _, err := f.Create([]byte(`{}`), config.DefaultConfig(), nil); err == nil {
		t.Fatal("expected missing token error")
	}
	ch, err := f.Create([]byte(`{"disabled":true}`), config.DefaultConfig(), nil)
	if err != nil || ch != nil {
		t.Fatalf("disabled channel must be skipped: %v %v", ch, err)
	}
}
