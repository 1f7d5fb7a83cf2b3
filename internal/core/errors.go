// Package core defines sentinel errors.
package core

import "errors"

var (
	// Packet decoding errors
	ErrPacketTooShort = errors.New("star-meter: packet too short")
	ErrNotIPv4        = errors.New("star-meter: not an ipv4 packet")
	ErrNotTCP         = errors.New("star-meter: not a tcp packet")

	// Application framing errors. Both indicate catastrophic stream
	// misalignment and terminate the process.
	ErrFrameTooLarge   = errors.New("star-meter: application frame length exceeds limit")
	ErrZeroLengthFrame = errors.New("star-meter: zero-length application frame")

	// Capture errors
	ErrNoDevice       = errors.New("star-meter: no capture device available")
	ErrDeviceNotFound = errors.New("star-meter: capture device not found")
	ErrSourceClosed   = errors.New("star-meter: capture source closed")

	// History errors
	ErrHistoryNotFound = errors.New("star-meter: history record not found")

	// Query errors
	ErrUserNotFound = errors.New("star-meter: user not found")
)
