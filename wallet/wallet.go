package wallet

import (
	"math/big"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/crypto"
)

// Wallet holds a key pair and builds signed ledger calls for one chain.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, which is the caller
// identity on the ledger.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed call. nonce should match the account's current
// nonce; value is the amount attached to the call.
func (w *Wallet) NewTx(typ core.TxType, nonce uint64, value *big.Int, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, value, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Ask posts a question with reward attached.
func (w *Wallet) Ask(nonce uint64, content string, reward *big.Int) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateQuestion, nonce, reward, core.CreateQuestionPayload{Content: content})
}

// Answer posts an answer paying fee.
func (w *Wallet) Answer(nonce uint64, questionID uint32, content string, fee *big.Int) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateAnswer, nonce, fee, core.CreateAnswerPayload{
		QuestionID: questionID,
		Content:    content,
	})
}

// Upvote tips the author of an answer with value.
func (w *Wallet) Upvote(nonce uint64, questionID, answerID uint32, value *big.Int) (*core.Transaction, error) {
	return w.NewTx(core.TxUpvoteAnswer, nonce, value, core.UpvoteAnswerPayload{
		QuestionID: questionID,
		AnswerID:   answerID,
	})
}

// Accept settles one of the caller's questions on the given answer.
func (w *Wallet) Accept(nonce uint64, questionID, answerID uint32) (*core.Transaction, error) {
	return w.NewTx(core.TxSetCorrectAnswer, nonce, nil, core.SetCorrectAnswerPayload{
		QuestionID: questionID,
		AnswerID:   answerID,
	})
}

// Transfer creates a signed host transfer.
func (w *Wallet) Transfer(nonce uint64, to string, amount *big.Int) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, nil, core.TransferPayload{
		To:     to,
		Amount: core.CopyAmount(amount),
	})
}
