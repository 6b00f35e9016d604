// Package economy moves host value between accounts outside the ledger.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

// TransferResult is returned to the caller of a transfer.
type TransferResult struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) (any, error) {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode transfer payload: %w", err)
	}
	if ctx.Tx.AttachedValue().Sign() != 0 {
		return nil, errors.New("transfer does not accept attached value")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, errors.New("transfer amount must be > 0")
	}
	if p.To == "" {
		return nil, errors.New("transfer to address required")
	}

	sender, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return nil, err
	}
	if sender.Balance.Cmp(p.Amount) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s, need %s", sender.Balance, p.Amount)
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, p.Amount)
	if err := ctx.State.SetAccount(sender); err != nil {
		return nil, err
	}

	recipient, err := ctx.State.GetAccount(p.To)
	if err != nil {
		return nil, err
	}
	recipient.Balance = new(big.Int).Add(recipient.Balance, p.Amount)
	if err := ctx.State.SetAccount(recipient); err != nil {
		return nil, err
	}

	ctx.Emit(events.EventValueTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": core.CopyAmount(p.Amount),
	})
	return &TransferResult{To: p.To, Amount: core.CopyAmount(p.Amount)}, nil
}
