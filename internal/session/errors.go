package session

import "errors"

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNotEscalatable = errors.New("case does not need an expert yet")
	ErrSessionClosed  = errors.New("session is closed")
	ErrInvalidID      = errors.New("session id is empty")
)
