package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tbourn/mvthread/internal/domain"
)

func TestResolveIdentity_PrefersMemberOverride(t *testing.T) {
	a := domain.Author{
		ID: "1", Username: "alice", GlobalName: "Alice", AvatarURL: "https://cdn/global.png",
		Member: &domain.MemberOverride{Nick: "Ally", AvatarURL: "https://cdn/member.png"},
	}
	id := ResolveIdentity(a)
	if id.DisplayName != "Ally" || id.AvatarURL != "https://cdn/member.png" || id.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestResolveIdentity_GlobalProfileFallback(t *testing.T) {
	a := domain.Author{ID: "1", Username: "alice", GlobalName: "Alice", AvatarURL: "https://cdn/global.png"}
	id := ResolveIdentity(a)
	if id.DisplayName != "Alice" || id.AvatarURL != "https://cdn/global.png" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// member present but empty: still the global profile
	a.Member = &domain.MemberOverride{Nick: "  "}
	id = ResolveIdentity(a)
	if id.DisplayName != "Alice" || id.AvatarURL != "https://cdn/global.png" {
		t.Fatalf("empty member override should fall back: %+v", id)
	}

	// no global name either: the username
	id = ResolveIdentity(domain.Author{Username: "bob", Bot: true})
	if id.DisplayName != "bob" || !id.Bot {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestWebhookUsername(t *testing.T) {
	cases := []struct {
		in   domain.AuthorIdentity
		want string
	}{
		{domain.AuthorIdentity{Username: "alice", DisplayName: "Ally"}, "Ally - (alice)"},
		{domain.AuthorIdentity{Username: "bob", DisplayName: "bob"}, "bob"},
		{domain.AuthorIdentity{Username: "", DisplayName: "x"}, "x"},
	}
	for _, tc := range cases {
		if got := WebhookUsername(tc.in); got != tc.want {
			t.Errorf("WebhookUsername(%+v) = %q; want %q", tc.in, got, tc.want)
		}
	}

	long := WebhookUsername(domain.AuthorIdentity{Username: "u", DisplayName: strings.Repeat("☃", 120)})
	if n := utf8.RuneCountInString(long); n != webhookUsernameMax {
		t.Fatalf("expected clip to %d runes, got %d", webhookUsernameMax, n)
	}
}
