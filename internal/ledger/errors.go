package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the settlement core can return.
// Operations fail with exactly one kind and zero ledger effect; callers map
// kinds to user-facing messages or HTTP statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidAmount
	KindInvalidDuration
	KindInsufficientBalance
	KindInsufficientFunds
	KindSupplyExceeded
	KindUnauthorized
	KindResourceInactive
	KindResourceNotFound
	KindAlreadyListed
	KindAuctionExpired
	KindAuctionNotYetExpired
	KindBidTooLow
	KindAlreadySettled
	KindInsufficientRewardReserve
	KindArithmeticOverflow
	KindDuplicateOperation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindInvalidDuration:
		return "InvalidDuration"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindSupplyExceeded:
		return "SupplyExceeded"
	case KindUnauthorized:
		return "Unauthorized"
	case KindResourceInactive:
		return "ResourceInactive"
	case KindResourceNotFound:
		return "ResourceNotFound"
	case KindAlreadyListed:
		return "AlreadyListed"
	case KindAuctionExpired:
		return "AuctionExpired"
	case KindAuctionNotYetExpired:
		return "AuctionNotYetExpired"
	case KindBidTooLow:
		return "BidTooLow"
	case KindAlreadySettled:
		return "AlreadySettled"
	case KindInsufficientRewardReserve:
		return "InsufficientRewardReserve"
	case KindArithmeticOverflow:
		return "ArithmeticOverflow"
	case KindDuplicateOperation:
		return "DuplicateOperation"
	default:
		return "Unknown"
	}
}

// Error is a typed settlement failure.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// E constructs a typed error.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
