package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount  = registerPrefix("acct:")
	prefixStake    = registerPrefix("stake:")
	prefixQuestion = registerPrefix("question:")
	prefixMeta     = registerPrefix("meta:")
)

var keyQuestionSeq = prefixMeta + "question_seq"

type stateSnapshot struct {
	dirty map[string][]byte
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
// Ledger entries are never deleted, so the buffer only tracks writes.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// scan returns the merged view of persisted entries and the write buffer
// for every key starting with prefix.
func (s *StateDB) scan(prefix string) (map[string][]byte, error) {
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(prefix))
	for it.Next() {
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		merged[string(it.Key())] = v
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	for k, v := range s.dirty {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	return merged, nil
}

func questionKey(id uint32) string {
	return fmt.Sprintf("%s%010d", prefixQuestion, id)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address, Balance: new(big.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Stake ----

func (s *StateDB) GetStake(account string) (*big.Int, error) {
	data, err := s.get(prefixStake + account)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, fmt.Errorf("corrupt stake entry for %q", account)
	}
	return amount, nil
}

func (s *StateDB) SetStake(account string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("stake for %q would be negative", account)
	}
	s.set(prefixStake+account, []byte(amount.String()))
	return nil
}

// ---- Question ----

func (s *StateDB) GetQuestion(id uint32) (*core.Question, error) {
	var q core.Question
	if err := s.getJSON(questionKey(id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *StateDB) SetQuestion(q *core.Question) error {
	return s.setJSON(questionKey(q.ID), q)
}

func (s *StateDB) Questions() ([]*core.Question, error) {
	entries, err := s.scan(prefixQuestion)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	// Fixed-width ids make lexical order equal numeric order.
	sort.Strings(keys)

	questions := make([]*core.Question, 0, len(keys))
	for _, k := range keys {
		var q core.Question
		if err := json.Unmarshal(entries[k], &q); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		questions = append(questions, &q)
	}
	return questions, nil
}

func (s *StateDB) LastQuestionID() (uint32, error) {
	data, err := s.get(keyQuestionSeq)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt question sequence: %w", err)
	}
	return uint32(id), nil
}

func (s *StateDB) SetLastQuestionID(id uint32) error {
	s.set(keyQuestionSeq, []byte(strconv.FormatUint(uint64(id), 10)))
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{dirty: make(map[string][]byte, len(s.dirty))}
	for k, v := range s.dirty {
		snap.dirty[k] = bytes.Clone(v)
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and drops it together with every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		dirty[k] = bytes.Clone(v)
	}

	s.dirty = dirty
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot hashes the sorted, length-prefixed key-value pairs of the
// complete state (persisted entries merged with the write buffer). It does
// not flush anything.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		entries, err := s.scan(prefix)
		if err != nil {
			return ""
		}
		for k, v := range entries {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it together with all snapshots.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}
