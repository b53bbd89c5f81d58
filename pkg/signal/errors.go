package signal

import "errors"

var (
	// ErrInvalidPrice is returned when a tick carries a non-positive or non-finite price
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidConfig is returned when tracker configuration is invalid
	ErrInvalidConfig = errors.New("invalid tracker configuration")
)
