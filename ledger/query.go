package ledger

import (
	"math/big"

	"github.com/tolelom/tolask/core"
)

// Query is the read-only view of the ledger.
type Query struct {
	stakes *StakeLedger
	store  *Store
}

// NewQuery returns a Query over state.
func NewQuery(state core.State) *Query {
	return &Query{stakes: NewStakeLedger(state), store: NewStore(state)}
}

// ListQuestions returns every question, answers included, keyed by id.
func (q *Query) ListQuestions() (map[uint32]*core.Question, error) {
	return q.store.ListQuestions()
}

// Question returns one question or core.ErrQuestionNotFound.
func (q *Query) Question(id uint32) (*core.Question, error) {
	return q.store.Question(id)
}

// Stake returns the pooled stake of account.
func (q *Query) Stake(account string) (*big.Int, error) {
	return q.stakes.Balance(account)
}
