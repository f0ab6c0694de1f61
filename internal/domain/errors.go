package domain

import "errors"

// Business-rule errors returned by the ledger and position lifecycle.
// Callers match them with errors.Is; adapters and the app service wrap
// them with additional context.
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidLeverage   = errors.New("leverage must be at least 1")
	ErrInvalidDirection  = errors.New("direction must be long or short")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrPositionNotFound  = errors.New("position not found")
	ErrUserNotFound      = errors.New("user not found")
)
