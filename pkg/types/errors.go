package types

import "errors"

var (
	ErrInvalidUsername  = errors.New("username must be 1-30 characters, alphanumeric plus underscore/hyphen/period")
	ErrEmptyContent     = errors.New("message content cannot be empty")
	ErrContentTooLarge  = errors.New("message content exceeds 64KB limit")
	ErrInvalidContainer = errors.New("container must be inbox, outbox or unread")
)
