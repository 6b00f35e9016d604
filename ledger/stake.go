package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tolelom/tolask/core"
)

// StakeLedger tracks each account's pooled deposit. A missing entry and a
// zero entry read the same.
type StakeLedger struct {
	state core.State
}

// NewStakeLedger returns a StakeLedger over state.
func NewStakeLedger(state core.State) *StakeLedger {
	return &StakeLedger{state: state}
}

// Balance returns the account's stake, zero when it never deposited.
func (l *StakeLedger) Balance(account string) (*big.Int, error) {
	bal, err := l.state.GetStake(account)
	if errors.Is(err, core.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stake of %q: %w", account, err)
	}
	return bal, nil
}

// Credit adds amount to the account's stake, creating the entry if absent.
func (l *StakeLedger) Credit(account string, amount *big.Int) error {
	bal, err := l.Balance(account)
	if err != nil {
		return err
	}
	return l.state.SetStake(account, bal.Add(bal, amount))
}

// Debit removes amount from the account's stake. It fails with
// core.ErrInsufficientStake when the account has no entry or too little.
func (l *StakeLedger) Debit(account string, amount *big.Int) error {
	bal, err := l.state.GetStake(account)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %q has no deposit", core.ErrInsufficientStake, account)
	}
	if err != nil {
		return fmt.Errorf("stake of %q: %w", account, err)
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", core.ErrInsufficientStake, bal, amount)
	}
	return l.state.SetStake(account, bal.Sub(bal, amount))
}
