package noise

import "errors"

// Handshake errors - internal use only. A consumed message that fails any of
// these checks is dropped without changing peer state.
var (
	// ErrMessageLength indicates a message with the wrong size for its type.
	ErrMessageLength = errors.New("message length mismatch")

	// ErrMessageType indicates an unexpected type word.
	ErrMessageType = errors.New("unexpected message type")

	// ErrInvalidMAC1 indicates mac1 verification failed.
	ErrInvalidMAC1 = errors.New("mac1 verification failed")

	// ErrDecrypt indicates an AEAD opened with a bad tag.
	ErrDecrypt = errors.New("handshake payload failed to authenticate")

	// ErrUnknownPeer indicates the initiation's static key is not the
	// configured remote peer.
	ErrUnknownPeer = errors.New("unknown peer static key")

	// ErrReplayedTimestamp indicates an initiation whose timestamp is not
	// strictly newer than the last accepted one.
	ErrReplayedTimestamp = errors.New("replayed handshake timestamp")

	// ErrInvalidState indicates a transition attempted from the wrong
	// handshake state.
	ErrInvalidState = errors.New("invalid handshake state")

	// ErrIndexMismatch indicates a response whose receiver index does not
	// match the in-flight handshake.
	ErrIndexMismatch = errors.New("receiver index mismatch")

	// ErrNoLastMAC1 indicates a cookie reply arrived with no initiation in
	// flight to bind it to.
	ErrNoLastMAC1 = errors.New("cookie reply without a sent mac1")

	// ErrInvalidCookie indicates a cookie reply that failed to decrypt.
	ErrInvalidCookie = errors.New("cookie reply failed to authenticate")
)
