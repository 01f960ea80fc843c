package chat

import "errors"

var (
	ErrMissingCallerIdentity = errors.New("conversation connection requires a resolved caller identity")
	ErrMissingPeerIdentity   = errors.New("conversation connection requires a peer username")
	ErrSelfMessage           = errors.New("cannot send messages to yourself")
)
