package services

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is returned when the user's plan does not allow the operation
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoMailbox is returned when the user has no connected mailbox
	ErrNoMailbox = errors.New("no mailbox connected")
	// ErrMailProvider wraps failures reported by the mail provider
	ErrMailProvider = errors.New("mail provider request failed")
	// ErrInvalidQuery is returned when the search parameters are inconsistent
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidFilter is returned for saved filters with malformed rules or dates
	ErrInvalidFilter = errors.New("invalid filter")

	ErrExtractionLimit = fmt.Errorf("%w: monthly extraction limit reached", ErrQuotaExceeded)
	ErrFilterLimit     = fmt.Errorf("%w: saved filter limit reached", ErrQuotaExceeded)
	ErrFieldLimit      = fmt.Errorf("%w: too many extraction fields", ErrQuotaExceeded)
)
