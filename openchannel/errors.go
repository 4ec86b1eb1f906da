package openchannel

import "errors"

var (
	// ErrInvalidAnchorInput is returned when an anchor input description
	// can't be parsed.
	ErrInvalidAnchorInput = errors.New("openchannel: invalid anchor input")

	// ErrInsufficientFunds is returned when the anchor inputs don't cover
	// the anchor amount plus its fee.
	ErrInsufficientFunds = errors.New("openchannel: anchor inputs don't " +
		"cover amount and fee")

	// ErrNotTestnet is returned when a private key isn't encoded for the
	// test network.
	ErrNotTestnet = errors.New("openchannel: private key not on testnet")

	// ErrInvalidAmount is returned for a non-positive amount or one above
	// the maximum amount of satoshis.
	ErrInvalidAmount = errors.New("openchannel: invalid anchor amount")

	// ErrInvalidFee is returned for a negative fee or one above the
	// maximum amount of satoshis.
	ErrInvalidFee = errors.New("openchannel: invalid fee")

	// ErrLocktimeTooLong is returned when the locktime in seconds doesn't
	// fit the 32 bit field of the message.
	ErrLocktimeTooLong = errors.New("openchannel: locktime too long")

	// ErrMissingField is returned when a decoded message lacks one of its
	// required records.
	ErrMissingField = errors.New("openchannel: missing required field")

	// ErrLocktimeTooShort is returned when the requested locktime is below
	// LocktimeMin.
	ErrLocktimeTooShort = errors.New("openchannel: locktime too short")
)
