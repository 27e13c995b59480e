package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/mvthread/internal/domain"
	"github.com/tbourn/mvthread/internal/sysutil"
)

// webhookUsernameMax is the platform's limit on webhook usernames.
const webhookUsernameMax = 80

// ResolveIdentity derives the name and avatar a message is replayed under.
// Guild-member overrides (nickname, member avatar) win over the global
// profile; the display name falls back to the global name, then the username.
func ResolveIdentity(a domain.Author) domain.AuthorIdentity {
	id := domain.AuthorIdentity{
		Username:    a.Username,
		DisplayName: sysutil.FirstNonEmpty(a.GlobalName, a.Username),
		AvatarURL:   a.AvatarURL,
		Bot:         a.Bot,
	}
	if a.Member != nil {
		if nick := strings.TrimSpace(a.Member.Nick); nick != "" {
			id.DisplayName = nick
		}
		if a.Member.AvatarURL != "" {
			id.AvatarURL = a.Member.AvatarURL
		}
	}
	return id
}

// WebhookUsername renders an identity as "<display> - (<username>)", clipped
// to the webhook username limit.
func WebhookUsername(id domain.AuthorIdentity) string {
	name := id.DisplayName
	if id.Username != "" && id.Username != id.DisplayName {
		name = fmt.Sprintf("%s - (%s)", id.DisplayName, id.Username)
	}
	return clipRunes(norm.NFC.String(strings.TrimSpace(name)), webhookUsernameMax)
}

// clipRunes truncates s to at most max runes.
func clipRunes(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}
