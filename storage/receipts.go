package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolask/core"
)

const (
	prefixReceipt = "receipt:"
	prefixSeq     = "seq:"
	keyJournalTip = "journal:tip"
)

// ReceiptStore implements core.ReceiptStore on top of any DB.
type ReceiptStore struct {
	db DB
}

// NewReceiptStore wraps db as a core.ReceiptStore.
func NewReceiptStore(db DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixSeq, seq))
}

func (s *ReceiptStore) GetReceipt(callID string) (*core.Receipt, error) {
	data, err := s.db.Get([]byte(prefixReceipt + callID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ReceiptStore) GetReceiptBySeq(seq uint64) (*core.Receipt, error) {
	id, err := s.db.Get(seqKey(seq))
	if err != nil {
		return nil, err
	}
	return s.GetReceipt(string(id))
}

func (s *ReceiptStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte(keyJournalTip))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *ReceiptStore) CommitReceipt(r *core.Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set([]byte(prefixReceipt+r.CallID), data)
	batch.Set(seqKey(r.Seq), []byte(r.CallID))
	batch.Set([]byte(keyJournalTip), []byte(r.CallID))
	return batch.Write()
}
