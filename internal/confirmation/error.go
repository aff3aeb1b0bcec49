package confirmation

import "errors"

var (
	ErrNotLoggedIn             = errors.New("must be logged in before using confirmations")
	ErrCannotFindConfirmations = errors.New("unable to find confirmations")
	ErrConfirmationNotFound    = errors.New("could not find confirmation for object")
	ErrUnknownTag              = errors.New("unknown confirmation tag")
	ErrKeyDisabled             = errors.New("details keys are disabled while an identity secret is configured")
	ErrNoKeySource             = errors.New("no key provider and nobody is listening for KeyNeeded")
	ErrMismatchedNonces        = errors.New("every confirmation id needs exactly one nonce")
)
