package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/host"
	"github.com/tolelom/tolask/indexer"
	"github.com/tolelom/tolask/ledger"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	host     *host.Host
	indexer  *indexer.Indexer
	chainID  string // expected chain_id; used to reject cross-chain replay calls
	validate *validator.Validate
}

// NewHandler creates an RPC Handler.
func NewHandler(h *host.Host, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{host: h, indexer: idx, chainID: chainID, validate: validator.New()}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getHeight":
		return okResponse(req.ID, h.host.Height())

	case "sendCall":
		return h.sendCall(req)

	case "listQuestions":
		return h.listQuestions(req)

	case "getQuestion":
		return h.getQuestion(req)

	case "getStake":
		return h.getStake(req)

	case "getBalance":
		return h.getBalance(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getQuestionsByAuthor":
		return h.getQuestionsByAuthor(req)

	case "getAnswersByAuthor":
		return h.getAnswersByAuthor(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// decode unmarshals params into v and validates its struct tags.
func (h *Handler) decode(req Request, v any) error {
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, v); err != nil {
			return fmt.Errorf("params: %w", err)
		}
	}
	return h.validate.Struct(v)
}

func failure(req Request, err error, fallback int) Response {
	return errResponse(req.ID, codeFor(err, fallback), err.Error())
}

func (h *Handler) sendCall(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject calls destined for a different network to prevent cross-chain
	// replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	receipt, err := h.host.Submit(&tx)
	if err != nil {
		return failure(req, err, CodeCallRejected)
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) listQuestions(req Request) Response {
	var questions map[uint32]*core.Question
	err := h.host.View(func(state core.State) error {
		var err error
		questions, err = ledger.NewQuery(state).ListQuestions()
		return err
	})
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	return okResponse(req.ID, questions)
}

func (h *Handler) getQuestion(req Request) Response {
	var params struct {
		ID uint32 `json:"id" validate:"required"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var q *core.Question
	err := h.host.View(func(state core.State) error {
		var err error
		q, err = ledger.NewQuery(state).Question(params.ID)
		return err
	})
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	return okResponse(req.ID, q)
}

func (h *Handler) getStake(req Request) Response {
	var params struct {
		Account string `json:"account" validate:"required"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var stake *big.Int
	err := h.host.View(func(state core.State) error {
		var err error
		stake, err = ledger.NewQuery(state).Stake(params.Account)
		return err
	})
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	return okResponse(req.ID, map[string]any{"account": params.Account, "stake": stake})
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address" validate:"required"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var acc *core.Account
	err := h.host.View(func(state core.State) error {
		var err error
		acc, err = state.GetAccount(params.Address)
		return err
	})
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		CallID string  `json:"call_id" validate:"required_without=Seq"`
		Seq    *uint64 `json:"seq" validate:"omitempty,min=1"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var (
		receipt *core.Receipt
		err     error
	)
	if params.CallID != "" {
		receipt, err = h.host.Receipt(params.CallID)
	} else {
		receipt, err = h.host.ReceiptBySeq(*params.Seq)
	}
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) getQuestionsByAuthor(req Request) Response {
	var params struct {
		Author string `json:"author" validate:"required"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	ids, err := h.indexer.QuestionsByAuthor(params.Author)
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	if ids == nil {
		ids = []uint32{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getAnswersByAuthor(req Request) Response {
	var params struct {
		Author string `json:"author" validate:"required"`
	}
	if err := h.decode(req, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	refs, err := h.indexer.AnswersByAuthor(params.Author)
	if err != nil {
		return failure(req, err, CodeInternalError)
	}
	if refs == nil {
		refs = []indexer.AnswerRef{}
	}
	return okResponse(req.ID, refs)
}
