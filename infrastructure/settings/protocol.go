package settings

import "time"

// WireGuard protocol timing and counter limits. These values are fixed by the
// protocol; changing them breaks interoperability or weakens the rekey
// guarantees, so they are not part of TunnelConfig.
const (
	// RekeyAfterMessages is the send-counter threshold past which the
	// initiator starts a fresh handshake.
	RekeyAfterMessages = uint64(1) << 60

	// RejectAfterMessages is the hard send/receive counter limit; a session
	// refuses to seal or open anything at or beyond it.
	RejectAfterMessages = ^uint64(0) - (uint64(1) << 13) - 1

	// RekeyAfterTime is the session age past which the initiator rekeys.
	RekeyAfterTime = 120 * time.Second

	// RejectAfterTime is the session age past which it is unusable in either
	// direction and gets retired.
	RejectAfterTime = 180 * time.Second

	// RekeyTimeout is how long to wait for a handshake response before
	// resending the initiation.
	RekeyTimeout = 5 * time.Second

	// RekeyTimeoutJitterMax is added to RekeyTimeout on each retry so
	// concurrent peers do not synchronize their retries.
	RekeyTimeoutJitterMax = 334 * time.Millisecond

	// RekeyAttemptTime bounds the total duration of one handshake attempt
	// series; past it the handshake fails.
	RekeyAttemptTime = 90 * time.Second

	// MaxTimerHandshakes is the number of consecutive unanswered initiations
	// before the handshake is abandoned.
	MaxTimerHandshakes = 3

	// CookieRefreshTime is how long a received cookie stays valid for mac2.
	CookieRefreshTime = 120 * time.Second

	// PaddingMultiple is the transport plaintext alignment; payloads are
	// zero-padded up to it before sealing.
	PaddingMultiple = 16
)

// ReplayWindowSize is the default receive-window width in packets.
const ReplayWindowSize = 2048
