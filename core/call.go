package core

import "math/big"

// Call is what the host tells the ledger about the current invocation:
// who is calling and how much value came attached.
type Call struct {
	Caller string
	Value  *big.Int
}

// AttachedValue returns the attached value, treating nil as zero.
func (c Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Transfer is a value movement the host must perform once the call succeeds.
type Transfer struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

// Outcome is the result of a ledger operation together with the transfers
// the host still has to execute. Only the fields relevant to the operation
// are set.
type Outcome struct {
	QuestionID uint32     `json:"question_id,omitempty"`
	AnswerID   uint32     `json:"answer_id,omitempty"`
	Answer     *Answer    `json:"answer,omitempty"`
	Transfers  []Transfer `json:"transfers,omitempty"`
}

// NewAmount returns v as an arbitrary-precision amount.
func NewAmount(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// CopyAmount returns a copy of a, or zero when a is nil.
func CopyAmount(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}
