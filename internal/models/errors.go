package models

import "errors"

var (
	// ErrReasoningUnavailable indicates the reasoning service could not be reached or timed out.
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
	// ErrSandboxUnavailable indicates the sandbox service could not be reached or timed out.
	ErrSandboxUnavailable = errors.New("sandbox service unavailable")
	// ErrExtractionFailed indicates the reasoning response could not be understood.
	ErrExtractionFailed = errors.New("reasoning response could not be understood")
	// ErrInvalidTransition indicates a lifecycle action not permitted in the review's current state.
	ErrInvalidTransition = errors.New("action not permitted in current review state")
	// ErrNotFound indicates an unknown review, user or vote target.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the acting user's role does not allow the action.
	ErrUnauthorized = errors.New("action not permitted for this role")
	// ErrUnauthenticated indicates no valid credentials were presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidInput indicates a malformed request value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateVote indicates the voter already voted on this review.
	ErrDuplicateVote = errors.New("voter already voted on this review")
	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("username already exists")
)
