// Package services defines the business logic for credits, personas, and
// automated engagement. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Credit-related errors.
var (
	// ErrInvalidAmount is returned when a grant or consume amount is zero
	// or negative. State is never mutated.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidPlan is returned when an upgrade names an unknown plan.
	ErrInvalidPlan = errors.New("unknown plan")

	// ErrInsufficientCredits is returned when a consume would drive the
	// balance negative. The balance and ledger are left unchanged.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrSelfGrantDisabled is returned when self-granting is switched off
	// by configuration.
	ErrSelfGrantDisabled = errors.New("self grant disabled")
)

// Engagement-related errors.
var (
	// ErrPersonaNotFound indicates the persona ordinal does not exist for
	// the user.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrPersonaNotLinked is returned when an action requires an Instagram
	// link the persona does not have.
	ErrPersonaNotLinked = errors.New("persona not linked to instagram")

	// ErrOAuthRequired is returned when the persona has no stored token or
	// the Graph API rejected it (error code 190). The user must re-authorize.
	ErrOAuthRequired = errors.New("instagram authorization required")

	// ErrAIEmptyReply is returned when the AI service produced an empty
	// reply for a comment.
	ErrAIEmptyReply = errors.New("ai returned empty reply")

	// ErrPreClaimFailed is returned when the dedup pre-claim write fails.
	// The action must abort: proceeding could double-post under races.
	ErrPreClaimFailed = errors.New("dedup pre-claim failed")

	// ErrStorageUnavailable is returned when an action needs blob storage
	// and none is configured.
	ErrStorageUnavailable = errors.New("object storage not configured")
)
