package vm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/metrics"
)

// Context is passed to every Handler. It exposes the ledger state, the
// triggering call and the host capabilities a handler may use.
type Context struct {
	State   core.State
	Tx      *core.Transaction
	Metrics *metrics.Metrics

	escrow  string
	pending []events.Event
}

// Call returns the caller and attached value of the current call.
func (c *Context) Call() core.Call {
	return c.Tx.Call()
}

// Emit queues ev; queued events are delivered only after the call succeeds.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{Type: typ, CallID: c.Tx.ID, Data: data})
}

// Transfer pays t.Amount from the ledger escrow account to t.To.
func (c *Context) Transfer(t core.Transfer) error {
	if t.Amount == nil || t.Amount.Sign() == 0 {
		return nil
	}
	if t.Amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must not be negative")
	}
	if err := moveBalance(c.State, c.escrow, t.To, t.Amount); err != nil {
		return fmt.Errorf("transfer to %s: %w", t.To, err)
	}
	c.Emit(events.EventValueTransfer, map[string]any{
		"from":   c.escrow,
		"to":     t.To,
		"amount": core.CopyAmount(t.Amount),
	})
	return nil
}

// moveBalance debits from and credits to on the host accounts.
func moveBalance(state core.State, from, to string, amount *big.Int) error {
	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance in %s: have %s need %s", from, sender.Balance, amount)
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	if err := state.SetAccount(sender); err != nil {
		return err
	}

	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
	return state.SetAccount(recipient)
}

// Options configures an Executor.
type Options struct {
	ChainID string
	// Escrow is the host account that receives attached value and funds
	// every transfer effect.
	Escrow  string
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Executor applies calls to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
	opts    Options
	log     logrus.FieldLogger
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter, opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{state: state, emitter: emitter, opts: opts, log: log}
}

// Execution is a call that executed successfully. Its events are held back
// until Publish so that subscribers only see calls the host has persisted.
type Execution struct {
	Result any
	Events []events.Event
}

// ExecuteTx verifies and executes a single call with snapshot/rollback.
// On failure no write of the call, nonce and attached value included,
// survives. Nothing is emitted; see Publish.
func (e *Executor) ExecuteTx(tx *core.Transaction) (*Execution, error) {
	log := e.log.WithFields(logrus.Fields{"call_id": tx.ID, "type": tx.Type, "caller": tx.From})

	if tx.ChainID != e.opts.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: got %q want %q", tx.ChainID, e.opts.ChainID)
	}
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	if tx.ID != tx.Hash() {
		return nil, fmt.Errorf("call id %q does not match its hash", tx.ID)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	result, pending, err := e.applyTx(tx)
	e.opts.Metrics.ObserveCall(string(tx.Type), err)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after call failure: %w (revert: %v)", err, revertErr)
		}
		log.WithError(err).Warn("call rejected")
		return nil, err
	}

	pending = append(pending, events.Event{
		Type:   events.EventCallExecuted,
		CallID: tx.ID,
		Data:   map[string]any{"type": string(tx.Type), "from": tx.From},
	})
	log.Debug("call executed")
	return &Execution{Result: result, Events: pending}, nil
}

// Publish delivers the events of ex in the order they were raised, ending
// with call_executed.
func (e *Executor) Publish(ex *Execution) {
	if e.emitter == nil || ex == nil {
		return
	}
	for _, ev := range ex.Events {
		e.emitter.Emit(ev)
	}
}

// applyTx checks the nonce, moves the attached value into escrow, then
// dispatches to the handler.
func (e *Executor) applyTx(tx *core.Transaction) (any, []events.Event, error) {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return nil, nil, fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return nil, nil, fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return nil, nil, err
	}

	if value := tx.AttachedValue(); value.Sign() > 0 {
		if e.opts.Escrow == "" {
			return nil, nil, fmt.Errorf("no escrow account configured for attached value")
		}
		if err := moveBalance(e.state, tx.From, e.opts.Escrow, value); err != nil {
			return nil, nil, fmt.Errorf("attach value: %w", err)
		}
	}

	ctx := &Context{
		State:   e.state,
		Tx:      tx,
		Metrics: e.opts.Metrics,
		escrow:  e.opts.Escrow,
	}
	result, err := globalRegistry.Execute(tx.Type, ctx, tx.Payload)
	if err != nil {
		return nil, nil, err
	}
	return result, ctx.pending, nil
}
