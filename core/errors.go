package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Failure kinds surfaced by ledger operations. Each one aborts the whole call.
var (
	ErrDepositTooLow     = errors.New("deposit too low")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrAnswerNotFound    = errors.New("answer not found")
	ErrNotAuthor         = errors.New("caller is not the question author")
	ErrAlreadyResolved   = errors.New("question already has a correct answer")
	ErrSelfReward        = errors.New("question author cannot reward own answer")
	ErrInsufficientStake = errors.New("insufficient stake")
)
