package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tolelom/tolask/crypto"
)

// TxType identifies which ledger operation a signed call invokes.
type TxType string

const (
	TxTransfer         TxType = "transfer"
	TxCreateQuestion   TxType = "create_question"
	TxCreateAnswer     TxType = "create_answer"
	TxUpvoteAnswer     TxType = "upvote_answer"
	TxSetCorrectAnswer TxType = "set_correct_answer"
)

// Transaction is a signed call. From holds the caller's hex-encoded ed25519
// public key and Value the amount the caller attaches to the call.
// Signature covers all fields except ID and Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Value     *big.Int        `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Value     *big.Int        `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Value:     tx.AttachedValue(),
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// AttachedValue returns Value, treating nil as zero.
func (tx *Transaction) AttachedValue() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

// Call returns the host view of this transaction for ledger operations.
func (tx *Transaction) Call() Call {
	return Call{Caller: tx.From, Value: CopyAmount(tx.Value)}
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature, that From is a valid public key and that the
// attached value is not negative.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return errors.New("attached value must not be negative")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned call with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce uint64, value *big.Int, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Value:     CopyAmount(value),
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves host value between accounts.
type TransferPayload struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

// CreateQuestionPayload posts a question; the attached value is its reward.
type CreateQuestionPayload struct {
	Content string `json:"content"`
}

// CreateAnswerPayload answers a question; the attached value is the fee.
type CreateAnswerPayload struct {
	QuestionID uint32 `json:"question_id"`
	Content    string `json:"content"`
}

// UpvoteAnswerPayload adds the attached value to an answer's reward.
type UpvoteAnswerPayload struct {
	QuestionID uint32 `json:"question_id"`
	AnswerID   uint32 `json:"answer_id"`
}

// SetCorrectAnswerPayload settles a question on one of its answers.
type SetCorrectAnswerPayload struct {
	QuestionID uint32 `json:"question_id"`
	AnswerID   uint32 `json:"answer_id"`
}
