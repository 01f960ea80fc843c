package types

import (
	"regexp"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// IsValidUsername checks the directory's username format: 1-30 characters,
// alphanumeric plus underscore, hyphen and period. Comparison elsewhere is
// byte-wise, so no case folding happens here.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 30 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// ValidateContent checks an outgoing message body.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > 65536 {
		return ErrContentTooLarge
	}
	return nil
}

// IsValidContainer checks a message listing container name.
func IsValidContainer(container string) bool {
	switch container {
	case ContainerInbox, ContainerOutbox, ContainerUnread:
		return true
	default:
		return false
	}
}
