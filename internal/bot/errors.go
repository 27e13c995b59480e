// Package bot connects the migration pipeline to Discord: the /mv command
// definition, the gate that authorizes and validates an invocation before
// any migration work starts, and the session event handlers.
//
// Every error produced below the gate is recovered here and turned into the
// status line sent back to the invoking user.
package bot

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/tbourn/mvthread/internal/services"
)

var (
	// ErrNoChannel is returned when the invocation carries no usable channel.
	ErrNoChannel = errors.New("no channel found")

	// ErrNotAllowed is returned when the caller lacks the configured role.
	ErrNotAllowed = errors.New("not allowed")

	// ErrUnsupportedContext is returned when the invocation or target channel
	// is not eligible for a migration.
	ErrUnsupportedContext = errors.New("unsupported context")

	// ErrUnhandledCommand is returned for command names outside the command table.
	ErrUnhandledCommand = errors.New("unhandled command")
)

var (
	errNotForumThread = fmt.Errorf("%w: invoke the command from a forum thread", ErrUnsupportedContext)
	errTargetNotForum = fmt.Errorf("%w: target channel is not a forum", ErrUnsupportedContext)
)

// statusText renders err as the status line shown to the user.
func statusText(err error) string {
	switch {
	case errors.Is(err, errNotForumThread):
		return "Invoke the command from a forum thread"
	case errors.Is(err, errTargetNotForum):
		return "Target channel is not a forum"
	case errors.Is(err, ErrNoChannel),
		errors.Is(err, ErrNotAllowed),
		errors.Is(err, services.ErrAlreadyProcessing),
		errors.Is(err, services.ErrNoMessages),
		errors.Is(err, services.ErrRetrievalFailed),
		errors.Is(err, services.ErrSendFailed),
		errors.Is(err, services.ErrWebhookCreationFailed):
		return capitalize(err.Error())
	default:
		return "Something went wrong"
	}
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
