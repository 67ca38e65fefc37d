package core

import "errors"

var (
	ErrMissingCredentials = errors.New("api credentials not configured")
	ErrInvalidLeverage    = errors.New("leverage out of range")
	ErrInvalidPercentage  = errors.New("percentage out of range")
	ErrNoPosition         = errors.New("no active position")
	ErrInvalidQuantity    = errors.New("invalid quantity")
)
