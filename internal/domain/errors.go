package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTokenPair  = errors.New("invalid token pair")
	ErrInvalidAuction    = errors.New("invalid auction index")
	ErrAuctionNotRunning = errors.New("auction is in a waiting state")
	ErrMissingPrice      = errors.New("auction has no current price")
	ErrInvalidAmount     = errors.New("invalid order amount")
	ErrContextDone       = errors.New("context cancelled")
)
