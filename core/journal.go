package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tolelom/tolask/crypto"
)

// Receipt records one successfully executed call. Receipts are chained by
// PrevHash so the journal can be audited end to end.
type Receipt struct {
	Seq       uint64          `json:"seq"`
	CallID    string          `json:"call_id"`
	Type      TxType          `json:"type"`
	Caller    string          `json:"caller"`
	PrevHash  string          `json:"prev_hash"`
	StateRoot string          `json:"state_root"` // state after executing the call
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"hash"`
}

type receiptBody struct {
	Seq       uint64          `json:"seq"`
	CallID    string          `json:"call_id"`
	Type      TxType          `json:"type"`
	Caller    string          `json:"caller"`
	PrevHash  string          `json:"prev_hash"`
	StateRoot string          `json:"state_root"`
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ComputeHash returns the SHA-256 hash of every field except Hash.
func (r *Receipt) ComputeHash() string {
	data, err := json.Marshal(receiptBody{
		Seq:       r.Seq,
		CallID:    r.CallID,
		Type:      r.Type,
		Caller:    r.Caller,
		PrevHash:  r.PrevHash,
		StateRoot: r.StateRoot,
		Result:    r.Result,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// ReceiptStore is the persistence interface used by Journal.
// Implementations live in the storage package.
type ReceiptStore interface {
	GetReceipt(callID string) (*Receipt, error)
	GetReceiptBySeq(seq uint64) (*Receipt, error)
	// GetTip returns the latest call id, or ("", nil) for an empty journal.
	GetTip() (string, error)
	// CommitReceipt atomically writes the receipt, its sequence index entry
	// and the tip pointer.
	CommitReceipt(r *Receipt) error
}

// Journal is the append-only log of executed calls.
type Journal struct {
	mu     sync.RWMutex
	store  ReceiptStore
	tip    *Receipt
	height uint64
}

// NewJournal returns a Journal backed by store.
// Call Init() to load an existing tip from storage.
func NewJournal(store ReceiptStore) *Journal {
	return &Journal{store: store}
}

// Init loads the persisted tip from the receipt store.
func (j *Journal) Init() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tipID, err := j.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipID == "" {
		return nil
	}
	tip, err := j.store.GetReceipt(tipID)
	if err != nil {
		return fmt.Errorf("load tip receipt: %w", err)
	}
	j.tip = tip
	j.height = tip.Seq
	return nil
}

// Append assigns the next sequence number, links r to the current tip,
// seals its hash and persists it.
func (j *Journal) Append(r *Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	r.Seq = j.height + 1
	r.PrevHash = ""
	if j.tip != nil {
		r.PrevHash = j.tip.Hash
	}
	r.Hash = r.ComputeHash()

	if err := j.store.CommitReceipt(r); err != nil {
		return fmt.Errorf("commit receipt: %w", err)
	}
	j.tip = r
	j.height = r.Seq
	return nil
}

// Get returns a receipt by call id.
func (j *Journal) Get(callID string) (*Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.store.GetReceipt(callID)
}

// GetBySeq returns the receipt at the given sequence number.
func (j *Journal) GetBySeq(seq uint64) (*Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.store.GetReceiptBySeq(seq)
}

// Tip returns the latest receipt, or nil for an empty journal.
func (j *Journal) Tip() *Receipt {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tip
}

// Height returns the number of executed calls (0 for an empty journal).
func (j *Journal) Height() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.height
}
