package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/tbourn/mvthread/internal/domain"
)

func newTestMigrator(src *fakeSource, api *fakeWebhookAPI, fetch *fakeFetcher) *Migrator {
	if fetch == nil {
		fetch = &fakeFetcher{}
	}
	return &Migrator{
		Webhooks: &WebhookProvisioner{API: api, Name: "MVT_MIGRATOR"},
		History:  NewHistoryFetcher(src, 100),
		Rehost:   &Rehoster{Fetcher: fetch, Concurrency: 2, MaxBytes: 1 << 20},
		Pacer:    NewPacer(0, 1),
	}
}

func request() domain.MigrationRequest {
	return domain.MigrationRequest{
		SourceThreadID:       "src-thread",
		SourceThreadName:     "How do I X?",
		DestinationChannelID: "dst-forum",
		InvokedBy:            "mod",
	}
}

func TestMigrate_EndToEnd_ThreeMessages(t *testing.T) {
	op := msg("m1", "100", "original question <@everyone>")
	op.Attachments = []domain.Attachment{{URL: "https://cdn/shot.png", Filename: "shot.png"}}
	op.Embeds = []*discordgo.MessageEmbed{
		{Type: discordgo.EmbedTypeRich, Title: "rich"},
		{Type: discordgo.EmbedTypeLink, URL: "https://example.com"},
	}
	reply1 := msg("m2", "200", "first reply")
	reply1.Author.Member = &domain.MemberOverride{Nick: "Helper", AvatarURL: "https://cdn/member.png"}
	reply2 := msg("m3", "100", "thanks!")

	src := newFakeSource([]domain.HistoricalMessage{reply2, reply1, op})
	api := &fakeWebhookAPI{}
	fetch := &fakeFetcher{files: map[string][]byte{"https://cdn/shot.png": []byte("png")}}
	m := newTestMigrator(src, api, fetch)

	baseOK := testutil.ToFloat64(migrationsTotal.WithLabelValues("succeeded"))

	report, err := m.Migrate(context.Background(), "run-1", request())
	if err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	if api.created != 1 {
		t.Fatalf("expected one webhook created, got %d", api.created)
	}
	if len(api.execs) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(api.execs))
	}

	seed := api.execs[0]
	if seed.threadID != "" || !seed.wait || !seed.post.SuppressMentions {
		t.Fatalf("seed post flags unexpected: %+v", seed)
	}
	if seed.post.ThreadName != "How do I X?" {
		t.Fatalf("seed thread name = %q", seed.post.ThreadName)
	}
	if seed.post.Content != "original question <@everyone>\n||OP: <@100>||" {
		t.Fatalf("seed content = %q", seed.post.Content)
	}
	if seed.post.Username != "User 100 - (user100)" {
		t.Fatalf("seed username = %q", seed.post.Username)
	}
	if len(seed.post.Files) != 1 || string(seed.post.Files[0].Data) != "png" {
		t.Fatalf("seed files unexpected: %+v", seed.post.Files)
	}
	if len(seed.post.Embeds) != 1 || seed.post.Embeds[0].Title != "rich" {
		t.Fatalf("seed embeds should keep only rich embeds: %+v", seed.post.Embeds)
	}

	for i, want := range []struct{ content, username, avatar string }{
		{"first reply", "Helper - (user200)", "https://cdn/member.png"},
		{"thanks!", "User 100 - (user100)", ""},
	} {
		got := api.execs[i+1]
		if got.threadID != "new-thread" || got.wait || got.post.SuppressMentions {
			t.Fatalf("replay %d flags unexpected: %+v", i+1, got)
		}
		if got.post.Content != want.content || got.post.Username != want.username || got.post.AvatarURL != want.avatar {
			t.Fatalf("replay %d = %+v; want %+v", i+1, got.post, want)
		}
	}

	if report.DestinationThreadID != "new-thread" || report.Fetched != 3 || report.Migrated() != 3 {
		t.Fatalf("report unexpected: %+v", report)
	}
	if report.Count(domain.ReplayPosted) != 2 {
		t.Fatalf("expected 2 posted results, got %+v", report.Results)
	}
	if got := testutil.ToFloat64(migrationsTotal.WithLabelValues("succeeded")); got != baseOK+1 {
		t.Fatalf("succeeded counter = %v; want %v", got, baseOK+1)
	}
}

func TestMigrate_NoMessages(t *testing.T) {
	src := newFakeSource([]domain.HistoricalMessage{botMsg("b1")})
	api := &fakeWebhookAPI{}
	m := newTestMigrator(src, api, nil)

	report, err := m.Migrate(context.Background(), "run-2", request())
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
	if len(api.execs) != 0 {
		t.Fatalf("expected no posts, got %d", len(api.execs))
	}
	if api.created != 1 {
		t.Fatalf("webhook provisioning happens before the history fetch, created=%d", api.created)
	}
	if report == nil || report.Migrated() != 0 {
		t.Fatalf("report should be empty: %+v", report)
	}
}

func TestMigrate_SeedFailureIsFatal(t *testing.T) {
	src := newFakeSource([]domain.HistoricalMessage{msg("m2", "b", "reply"), msg("m1", "a", "op")})

	t.Run("error", func(t *testing.T) {
		api := &fakeWebhookAPI{seedErr: errors.New("50013: Missing Permissions")}
		_, err := newTestMigrator(newFakeSource(src.pages...), api, nil).Migrate(context.Background(), "r", request())
		if !errors.Is(err, ErrSendFailed) {
			t.Fatalf("expected ErrSendFailed, got %v", err)
		}
		if len(api.execs) != 1 {
			t.Fatalf("no replay expected after a failed seed, got %d posts", len(api.execs))
		}
	})

	t.Run("no message returned", func(t *testing.T) {
		api := &fakeWebhookAPI{seedReply: &domain.PostedMessage{ID: "x"}}
		_, err := newTestMigrator(newFakeSource(src.pages...), api, nil).Migrate(context.Background(), "r", request())
		if !errors.Is(err, ErrSendFailed) {
			t.Fatalf("expected ErrSendFailed, got %v", err)
		}
	})
}

func TestMigrate_WebhookCreationFailed(t *testing.T) {
	src := newFakeSource([]domain.HistoricalMessage{msg("m1", "a", "op")})
	api := &fakeWebhookAPI{createErr: errors.New("forbidden")}
	_, err := newTestMigrator(src, api, nil).Migrate(context.Background(), "r", request())
	if !errors.Is(err, ErrWebhookCreationFailed) {
		t.Fatalf("expected ErrWebhookCreationFailed, got %v", err)
	}
	if len(src.befores) != 0 {
		t.Fatalf("history should not be fetched without a webhook")
	}
}

func TestMigrate_ReplayIsBestEffort(t *testing.T) {
	empty := msg("m3", "c", "")
	onlyBrokenFile := msg("m4", "c", "")
	onlyBrokenFile.Attachments = []domain.Attachment{{URL: "https://cdn/gone", Filename: "gone"}}
	src := newFakeSource([]domain.HistoricalMessage{
		msg("m5", "a", "last"), onlyBrokenFile, empty, msg("m2", "b", "fails"), msg("m1", "a", "op"),
	})
	api := &fakeWebhookAPI{replayErrs: map[int]error{1: errors.New("rate limited")}}

	report, err := newTestMigrator(src, api, nil).Migrate(context.Background(), "r", request())
	if err != nil {
		t.Fatalf("replay failures must not fail the migration: %v", err)
	}
	want := []domain.ReplayStatus{domain.ReplayFailed, domain.ReplaySkipped, domain.ReplaySkipped, domain.ReplayPosted}
	if len(report.Results) != len(want) {
		t.Fatalf("results = %+v", report.Results)
	}
	for i, st := range want {
		if report.Results[i].Status != st || report.Results[i].Index != i+1 {
			t.Fatalf("result %d = %+v; want status %s", i, report.Results[i], st)
		}
	}
	if report.Results[0].Err == nil {
		t.Fatalf("failed result should carry the error")
	}
	// seed + failing reply + last reply; the two skipped messages are never posted
	if len(api.execs) != 3 || api.execs[2].post.Content != "last" {
		t.Fatalf("unexpected posts: %+v", api.execs)
	}
}

func TestSeedParts(t *testing.T) {
	if got := seedParts(msg("m1", "42", "hello\n")); len(got) != 1 || got[0] != "hello\n||OP: <@42>||" {
		t.Fatalf("seedParts = %q", got)
	}
	if got := seedParts(msg("m1", "42", "")); len(got) != 1 || got[0] != "||OP: <@42>||" {
		t.Fatalf("seedParts(empty) = %q", got)
	}

	body := strings.Repeat("x", 2500)
	parts := seedParts(msg("m1", "42", body))
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if n := utf8.RuneCountInString(parts[0]); n != contentMax || !strings.HasSuffix(parts[0], "\n||OP: <@42>||") {
		t.Fatalf("first part should be full and end with the marker, got %d runes", n)
	}
	head := strings.TrimSuffix(parts[0], "\n||OP: <@42>||")
	if head+parts[1] != body {
		t.Fatalf("seed text must survive the split")
	}
}

func TestSplitContent(t *testing.T) {
	if got := splitContent("", contentMax); len(got) != 0 {
		t.Fatalf("empty content should yield no parts: %q", got)
	}
	if got := splitContent("short", contentMax); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short content = %q", got)
	}

	// A line break in the second half of the window is preferred.
	s := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1000)
	got := splitContent(s, contentMax)
	if len(got) != 2 || got[0] != strings.Repeat("a", 1500) || got[1] != strings.Repeat("b", 1000) {
		t.Fatalf("split should land on the line break: %d parts", len(got))
	}

	// Multi-byte runes count once and are never cut.
	long := strings.Repeat("é", 4500)
	got = splitContent(long, contentMax)
	if len(got) != 3 || strings.Join(got, "") != long {
		t.Fatalf("hard split lost text: %d parts", len(got))
	}
	for i, p := range got {
		if n := utf8.RuneCountInString(p); n > contentMax {
			t.Fatalf("part %d has %d runes", i, n)
		}
	}

	if got := splitContent(strings.Repeat("c", 1990)+"\n   \n   ", 1995); len(got) != 1 {
		t.Fatalf("whitespace-only tail should not become a post: %q", got)
	}
}

func TestMigrate_LongReplyIsSplit(t *testing.T) {
	long := strings.Repeat("word ", 700) // 3500 runes
	reply := msg("m2", "200", long)
	reply.Attachments = []domain.Attachment{{URL: "https://cdn/log.txt", Filename: "log.txt"}}
	src := newFakeSource([]domain.HistoricalMessage{reply, msg("m1", "100", "op")})
	api := &fakeWebhookAPI{}
	fetch := &fakeFetcher{files: map[string][]byte{"https://cdn/log.txt": []byte("log")}}

	report, err := newTestMigrator(src, api, fetch).Migrate(context.Background(), "r", request())
	if err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if len(api.execs) != 3 {
		t.Fatalf("expected seed + 2 posts for the long reply, got %d", len(api.execs))
	}

	first, second := api.execs[1].post, api.execs[2].post
	if utf8.RuneCountInString(first.Content) != contentMax || len(first.Files) != 1 {
		t.Fatalf("first part should be full and carry the files: %d runes, %d files",
			utf8.RuneCountInString(first.Content), len(first.Files))
	}
	if len(second.Files) != 0 || second.Username != first.Username || api.execs[2].threadID != "new-thread" {
		t.Fatalf("continuation should be text-only under the same identity: %+v", second)
	}
	if first.Content+second.Content != long {
		t.Fatalf("posted %d runes of %d", utf8.RuneCountInString(first.Content+second.Content), utf8.RuneCountInString(long))
	}

	res := report.Results[0]
	if res.Status != domain.ReplayPosted || res.Parts != 2 {
		t.Fatalf("result = %+v; want posted in 2 parts", res)
	}
}

func TestMigrate_LongReplyContinuationFails(t *testing.T) {
	src := newFakeSource([]domain.HistoricalMessage{msg("m2", "200", strings.Repeat("z", 2100)), msg("m1", "100", "op")})
	api := &fakeWebhookAPI{replayErrs: map[int]error{2: errors.New("rate limited")}}

	report, err := newTestMigrator(src, api, nil).Migrate(context.Background(), "r", request())
	if err != nil {
		t.Fatalf("replay failures must not fail the migration: %v", err)
	}
	res := report.Results[0]
	if res.Status != domain.ReplayFailed || res.Parts != 1 || res.Err == nil {
		t.Fatalf("result = %+v; want failed after one part", res)
	}
}

func TestMigrate_LongSeedIsSplit(t *testing.T) {
	long := strings.Repeat("q", 3000)
	src := newFakeSource([]domain.HistoricalMessage{msg("m2", "200", "reply"), msg("m1", "100", long)})
	api := &fakeWebhookAPI{}

	if _, err := newTestMigrator(src, api, nil).Migrate(context.Background(), "r", request()); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if len(api.execs) != 3 {
		t.Fatalf("expected seed, seed continuation and reply, got %d posts", len(api.execs))
	}
	cont := api.execs[1]
	if cont.threadID != "new-thread" || !cont.post.SuppressMentions || cont.post.ThreadName != "" {
		t.Fatalf("seed continuation unexpected: %+v", cont)
	}
	if api.execs[2].post.Content != "reply" {
		t.Fatalf("replay should follow the seed continuation")
	}
}

func TestThreadName(t *testing.T) {
	if threadName("   ") != defaultThreadName {
		t.Fatalf("blank name should fall back to %q", defaultThreadName)
	}
	if threadName("  help  ") != "help" {
		t.Fatalf("name should be trimmed")
	}
	if n := utf8.RuneCountInString(threadName(strings.Repeat("é", 150))); n != threadNameMax {
		t.Fatalf("name should be clipped to %d runes, got %d", threadNameMax, n)
	}
}

func TestNewPacer(t *testing.T) {
	if p := NewPacer(0, 0); p.Limit() != rate.Inf || !p.Allow() || !p.Allow() {
		t.Fatalf("disabled pacer should always allow")
	}
	p := NewPacer(1, 0)
	if p.Burst() != 1 {
		t.Fatalf("burst should be coerced to 1, got %d", p.Burst())
	}
}
