package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tbourn/mvthread/internal/domain"
)

func TestNewHistoryFetcher_PageSizeDefaults(t *testing.T) {
	for _, in := range []int{0, -1, 101} {
		if got := NewHistoryFetcher(nil, in).PageSize; got != MaxPageSize {
			t.Fatalf("page size %d -> %d; want %d", in, got, MaxPageSize)
		}
	}
	if got := NewHistoryFetcher(nil, 25).PageSize; got != 25 {
		t.Fatalf("page size 25 -> %d", got)
	}
}

func TestFetch_ReversesPagesIntoOldestFirst(t *testing.T) {
	src := newFakeSource(
		[]domain.HistoricalMessage{msg("m5", "a", "5"), msg("m4", "b", "4"), msg("m3", "a", "3")},
		[]domain.HistoricalMessage{msg("m2", "b", "2"), msg("m1", "a", "1")},
	)
	f := NewHistoryFetcher(src, 3)

	out, err := f.Fetch(context.Background(), "thread")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if want := []string{"m1", "m2", "m3", "m4", "m5"}; !reflect.DeepEqual(ids(out), want) {
		t.Fatalf("order = %v; want %v", ids(out), want)
	}
	// first page without cursor, then before the oldest of each page, then the empty page
	if want := []string{"", "m3", "m1"}; !reflect.DeepEqual(src.befores, want) {
		t.Fatalf("cursors = %v; want %v", src.befores, want)
	}
}

func TestFetch_FiltersBotsAndSystemMessages(t *testing.T) {
	sys := msg("m3", "a", "")
	sys.System = true
	src := newFakeSource([]domain.HistoricalMessage{botMsg("m4"), sys, msg("m2", "b", "x"), botMsg("m1")})

	out, err := NewHistoryFetcher(src, 100).Fetch(context.Background(), "thread")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if want := []string{"m2"}; !reflect.DeepEqual(ids(out), want) {
		t.Fatalf("got %v; want %v", ids(out), want)
	}
	// the bot message still advances the cursor
	if src.befores[1] != "m1" {
		t.Fatalf("cursor after page = %q; want m1", src.befores[1])
	}
}

func TestFetch_EmptyFirstPage_SingleRequest(t *testing.T) {
	src := newFakeSource()
	out, err := NewHistoryFetcher(src, 100).Fetch(context.Background(), "thread")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty history, got %d", len(out))
	}
	if len(src.befores) != 1 {
		t.Fatalf("expected exactly one page request, got %d", len(src.befores))
	}
}

func TestFetch_FirstPageError_IsRetrievalFailed(t *testing.T) {
	src := newFakeSource([]domain.HistoricalMessage{msg("m1", "a", "x")})
	src.errAt = 0
	_, err := NewHistoryFetcher(src, 100).Fetch(context.Background(), "thread")
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
}

func TestFetch_LaterPageError_ReturnsAccumulated(t *testing.T) {
	src := newFakeSource(
		[]domain.HistoricalMessage{msg("m4", "a", "4"), msg("m3", "a", "3")},
		[]domain.HistoricalMessage{msg("m2", "a", "2"), msg("m1", "a", "1")},
	)
	src.errAt = 1
	out, err := NewHistoryFetcher(src, 2).Fetch(context.Background(), "thread")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if want := []string{"m3", "m4"}; !reflect.DeepEqual(ids(out), want) {
		t.Fatalf("got %v; want %v", ids(out), want)
	}
	if len(src.befores) != 2 {
		t.Fatalf("expected paging to stop after the failure, got %d requests", len(src.befores))
	}
}

func TestMessageTime(t *testing.T) {
	// 175928847299117063 is the documented example id, created 2016-04-30 11:18:25.796 UTC.
	at, ok := messageTime("175928847299117063")
	if !ok {
		t.Fatalf("expected a valid snowflake")
	}
	want := time.Date(2016, 4, 30, 11, 18, 25, 796*int(time.Millisecond), time.UTC)
	if !at.Equal(want) {
		t.Fatalf("messageTime = %v; want %v", at, want)
	}
	for _, id := range []string{"", "m1", "-5"} {
		if _, ok := messageTime(id); ok {
			t.Fatalf("messageTime(%q) should fail", id)
		}
	}
}
