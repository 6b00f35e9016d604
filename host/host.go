// Package host runs the ledger on a single node. It serializes signed calls,
// executes them, journals a receipt for every successful call and persists
// the resulting state.
package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/vm"
)

// ErrDuplicateCall is returned for a call whose id already has a receipt.
var ErrDuplicateCall = errors.New("call already executed")

// Host owns the state and executes calls one at a time.
type Host struct {
	mu      sync.RWMutex
	state   core.State
	journal *core.Journal
	exec    *vm.Executor
	log     logrus.FieldLogger
}

// New creates a Host. journal must already be initialised.
func New(state core.State, journal *core.Journal, exec *vm.Executor, log logrus.FieldLogger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{state: state, journal: journal, exec: exec, log: log}
}

// Submit executes tx and returns its receipt. A failed call changes nothing
// and leaves no receipt.
func (h *Host) Submit(tx *core.Transaction) (*core.Receipt, error) {
	if err := core.CheckAdmission(tx, time.Now()); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if tx.ID != "" {
		if _, err := h.journal.Get(tx.ID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCall, tx.ID)
		} else if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("lookup receipt: %w", err)
		}
	}

	snapID, err := h.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ex, err := h.exec.ExecuteTx(tx)
	if err != nil {
		if revertErr := h.state.RevertToSnapshot(snapID); revertErr != nil {
			h.log.WithError(revertErr).Error("revert after rejected call")
		}
		return nil, err
	}
	raw, err := json.Marshal(ex.Result)
	if err != nil {
		_ = h.state.RevertToSnapshot(snapID)
		return nil, fmt.Errorf("encode result: %w", err)
	}

	// Compute root from the write buffer BEFORE flushing so that if the
	// receipt cannot be stored the state has not yet been persisted.
	receipt := &core.Receipt{
		CallID:    tx.ID,
		Type:      tx.Type,
		Caller:    tx.From,
		StateRoot: h.state.ComputeRoot(),
		Result:    raw,
		Timestamp: time.Now().UnixNano(),
	}
	if err := h.journal.Append(receipt); err != nil {
		if revertErr := h.state.RevertToSnapshot(snapID); revertErr != nil {
			h.log.WithError(revertErr).Error("revert after journal failure")
		}
		return nil, err
	}

	// Flush state only after the receipt is safely stored.
	if err := h.state.Commit(); err != nil {
		h.log.WithError(err).WithField("seq", receipt.Seq).
			Fatal("receipt stored but state commit failed")
	}

	// Subscribers such as the indexer write straight to the DB, so they only
	// hear about the call once it is durable.
	h.exec.Publish(ex)

	h.log.WithFields(logrus.Fields{
		"seq":     receipt.Seq,
		"call_id": receipt.CallID,
		"type":    receipt.Type,
	}).Info("call committed")
	return receipt, nil
}

// View runs fn against the committed state. Calls are not executed while
// fn runs; fn must not write.
func (h *Host) View(fn func(state core.State) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.state)
}

// Receipt returns the receipt of an executed call.
func (h *Host) Receipt(callID string) (*core.Receipt, error) {
	return h.journal.Get(callID)
}

// ReceiptBySeq returns the receipt at a journal position.
func (h *Host) ReceiptBySeq(seq uint64) (*core.Receipt, error) {
	return h.journal.GetBySeq(seq)
}

// Height returns the number of executed calls.
func (h *Host) Height() uint64 {
	return h.journal.Height()
}

// StateRoot returns the state root recorded by the latest receipt, or the
// root of the current state for an empty journal.
func (h *Host) StateRoot() string {
	if tip := h.journal.Tip(); tip != nil {
		return tip.StateRoot
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.ComputeRoot()
}
