package core

import "errors"

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrNonPositiveAmount    = errors.New("amount must be positive")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrEmptyDescription     = errors.New("empty description")
	ErrEmptySplitSet        = errors.New("expense has no splits")
	ErrDuplicateParticipant = errors.New("duplicate participant in splits")
	ErrInvalidSplitSum      = errors.New("splits do not sum to the expense amount")
	ErrEmptyName            = errors.New("empty name")

	ErrNotAuthorized       = errors.New("not authorized")
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyMember       = errors.New("already a member")
	ErrNotAMember          = errors.New("not a member")
)
