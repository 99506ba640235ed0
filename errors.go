package netaio

import "errors"

// Error kinds from the wire/dispatch/security pipeline. Handlers and
// pipeline stages return these (optionally wrapped with fmt.Errorf's
// %w) so callers can errors.Is against them.
var (
	// ErrMalformedFrame is returned when a frame's declared lengths
	// cannot be satisfied by the bytes available to decode it.
	ErrMalformedFrame = errors.New("netaio: malformed frame")

	// ErrChecksumMismatch is returned when the decoded body's CRC-32
	// does not match the header's checksum field.
	ErrChecksumMismatch = errors.New("netaio: checksum mismatch")

	// ErrFrameTooLarge is returned when a header declares an
	// auth_length or body_length exceeding MaxFrameSize.
	ErrFrameTooLarge = errors.New("netaio: frame exceeds maximum size")

	// ErrAuthFailure is returned when an outer or inner auth plugin's
	// Check call returns false.
	ErrAuthFailure = errors.New("netaio: auth check failed")

	// ErrNotFound is returned by DispatchInner (and so ProcessInbound)
	// when no handler is registered for a message's type and URI.
	ErrNotFound = errors.New("netaio: not found")

	// ErrNotPermitted is returned by a handler when the caller is
	// authenticated but not authorized for the requested operation.
	ErrNotPermitted = errors.New("netaio: not permitted")

	// ErrTimeout is returned when a correlated request does not
	// receive its matching response within the given timeout.
	ErrTimeout = errors.New("netaio: request timed out")

	// ErrConnectionLost is returned when a TCP connection closes or
	// resets out from under an in-flight operation.
	ErrConnectionLost = errors.New("netaio: connection lost")

	// ErrInvalidMessageType is wrapped by every error ValidateMessageTypes
	// returns. The frame codecs accept any message type byte.
	ErrInvalidMessageType = errors.New("netaio: invalid message type")

	// ErrNoPeerAddrs is returned when an operation needs a reachable
	// address for a peer that has none recorded.
	ErrNoPeerAddrs = errors.New("netaio: peer has no known addresses")

	// ErrReplay names a replayed (nonce, ts) pair. HMACAuthPlugin's
	// replay cache does not return it: Check reports a replay as
	// (false, nil), like any other failed check.
	ErrReplay = errors.New("netaio: replayed auth fields")
)
