// Package services implements the thread migration pipeline: history
// retrieval, identity resolution, the impersonation webhook, attachment
// re-hosting, the single-flight guard and the orchestrator tying them
// together. This file centralizes the service-level error values.
//
// Errors that carry a platform reason are wrapped around these sentinels
// (fmt.Errorf("%w: ...")), so callers match them with errors.Is and turn them
// into user-facing text at the command layer.
package services

import "errors"

var (
	// ErrNoMessages is returned when the source thread has no eligible messages.
	ErrNoMessages = errors.New("no messages found")

	// ErrRetrievalFailed is returned when the history could not be read at all.
	ErrRetrievalFailed = errors.New("unable to retrieve the messages")

	// ErrSendFailed is returned when the seed message could not be posted or
	// the platform returned no message for it.
	ErrSendFailed = errors.New("unable to send the message")

	// ErrWebhookCreationFailed is returned when the impersonation webhook could
	// not be provisioned on the destination channel.
	ErrWebhookCreationFailed = errors.New("unable to create the webhook")

	// ErrMigrationNotFound is returned when no journal record has the
	// requested run id.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrAlreadyProcessing is returned when another migration holds the guard.
	ErrAlreadyProcessing = errors.New("already processing")
)
