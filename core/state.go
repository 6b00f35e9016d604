package core

import "math/big"

// Account is a host-side balance plus the replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string   `json:"address"`
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

// Answer is a reply to a question. It has no lifecycle outside its question.
type Answer struct {
	ID        uint32   `json:"id"`
	Content   string   `json:"content"`
	Author    string   `json:"author"`
	Reward    *big.Int `json:"reward"`
	IsCorrect bool     `json:"is_correct"`
}

// Question is a staked request for an answer. Reward is fixed at creation.
type Question struct {
	ID      uint32    `json:"id"`
	Content string    `json:"content"`
	Reward  *big.Int  `json:"reward"`
	Author  string    `json:"author"`
	Answers []*Answer `json:"answers"`
}

// Answer returns the answer with the given id, or nil.
func (q *Question) Answer(id uint32) *Answer {
	for _, a := range q.Answers {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Resolved reports whether an answer has already been marked correct.
func (q *Question) Resolved() bool {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return true
		}
	}
	return false
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed calls.
type State interface {
	// Host accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Stakes. GetStake returns ErrNotFound for an account that never deposited.
	GetStake(account string) (*big.Int, error)
	SetStake(account string, amount *big.Int) error

	// Questions
	GetQuestion(id uint32) (*Question, error)
	SetQuestion(q *Question) error
	// Questions returns every stored question in ascending id order.
	Questions() ([]*Question, error)
	// LastQuestionID returns ErrNotFound when no id was ever assigned
	// through the sequence counter.
	LastQuestionID() (uint32, error)
	SetLastQuestionID(id uint32) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
