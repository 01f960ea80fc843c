package interfaces

import "errors"

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrGroupNotFound         = errors.New("group not found")
	ErrConnectionNotInGroup  = errors.New("connection does not belong to any group")
	ErrNotMessageParticipant = errors.New("user is neither sender nor recipient of the message")
)
