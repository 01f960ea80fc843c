package presence

import "errors"

var (
	ErrMissingIdentity = errors.New("presence connection requires a resolved user identity")
)
