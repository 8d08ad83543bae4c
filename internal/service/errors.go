package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrMessageNotFound = errors.New("message not found")
	// ErrReportExpired rejects votes, messages and sources on expired reports.
	ErrReportExpired = errors.New("report has expired")
	ErrDuplicateVote = errors.New("you have already voted on this report")
	ErrUnauthorized  = errors.New("unauthorized")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RateLimitError is returned when a sender posts again inside the cooldown.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("please wait %d seconds before sending another message", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
