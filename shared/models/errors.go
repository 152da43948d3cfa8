package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound        = errors.New("resource not found") // General not found
	ErrAttemptNotFound = errors.New("suggestion attempt not found")

	// Lifecycle Errors
	ErrInvalidTransition = errors.New("invalid suggestion status transition")
	ErrAttemptFinished   = errors.New("suggestion attempt is already in a terminal state")

	// Generation Errors
	ErrEventHasActiveGeneration = errors.New("event already has an active generation attempt")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)
