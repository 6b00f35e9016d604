// Package rpc exposes the ledger via a JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/host"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

// Ledger error codes, one per failure kind.
const (
	CodeDepositTooLow     = -32010
	CodeQuestionNotFound  = -32011
	CodeAnswerNotFound    = -32012
	CodeNotAuthor         = -32013
	CodeAlreadyResolved   = -32014
	CodeSelfReward        = -32015
	CodeInsufficientStake = -32016
	CodeNotFound          = -32017
	CodeDuplicateCall     = -32018
	CodeCallRejected      = -32019
	CodeCallExpired       = -32020
)

var errorCodes = []struct {
	err  error
	code int
}{
	{core.ErrDepositTooLow, CodeDepositTooLow},
	{core.ErrQuestionNotFound, CodeQuestionNotFound},
	{core.ErrAnswerNotFound, CodeAnswerNotFound},
	{core.ErrNotAuthor, CodeNotAuthor},
	{core.ErrAlreadyResolved, CodeAlreadyResolved},
	{core.ErrSelfReward, CodeSelfReward},
	{core.ErrInsufficientStake, CodeInsufficientStake},
	{core.ErrNotFound, CodeNotFound},
	{host.ErrDuplicateCall, CodeDuplicateCall},
	{core.ErrCallExpired, CodeCallExpired},
}

// codeFor maps err to its ledger error code, or fallback for unknown errors.
func codeFor(err error, fallback int) int {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return fallback
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
