package chacha20

import "errors"

var (
	// ErrNonUniqueCounter marks a replayed or too-old transport counter.
	ErrNonUniqueCounter = errors.New("transport counter was not unique")

	// ErrCounterExhausted marks a session whose send counter reached the
	// hard protocol limit.
	ErrCounterExhausted = errors.New("send counter exhausted")

	// ErrSessionExpired marks a session past its usable lifetime.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRetired marks a session whose keys were already zeroized.
	ErrSessionRetired = errors.New("session retired")

	// ErrReceiverMismatch marks a transport message addressed to a different
	// session index.
	ErrReceiverMismatch = errors.New("receiver index mismatch")

	// ErrDecryptFailed marks an AEAD tag failure on a transport message.
	ErrDecryptFailed = errors.New("transport payload failed to authenticate")

	// ErrPacketTooShort marks a transport message smaller than header+tag.
	ErrPacketTooShort = errors.New("transport message too short")
)
