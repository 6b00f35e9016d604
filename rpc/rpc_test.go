package rpc_test

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolask/config"
	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/crypto"
	"github.com/tolelom/tolask/crypto/certgen"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/host"
	"github.com/tolelom/tolask/indexer"
	"github.com/tolelom/tolask/internal/testutil"
	"github.com/tolelom/tolask/metrics"
	"github.com/tolelom/tolask/rpc"
	"github.com/tolelom/tolask/storage"
	"github.com/tolelom/tolask/vm"
	_ "github.com/tolelom/tolask/vm/modules/qa"
)

const chainID = "rpc-test"

type node struct {
	state   *storage.StateDB
	handler *rpc.Handler
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func newNode(t *testing.T) *node {
	t.Helper()
	log, _ := test.NewNullLogger()
	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	emitter := events.NewEmitter(log)
	idx := indexer.New(db, emitter, log)
	journal := core.NewJournal(storage.NewReceiptStore(db))
	require.NoError(t, journal.Init())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	exec := vm.NewExecutor(state, emitter, vm.Options{ChainID: chainID, Escrow: "escrow", Logger: log, Metrics: m})
	h := host.New(state, journal, exec, log)
	return &node{state: state, handler: rpc.NewHandler(h, idx, chainID), reg: reg, metrics: m}
}

func (n *node) fund(t *testing.T, balance int64) crypto.PrivateKey {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, n.state.SetAccount(&core.Account{Address: pub.Hex(), Balance: big.NewInt(balance)}))
	require.NoError(t, n.state.Commit())
	return priv
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

func signedCall(t *testing.T, priv crypto.PrivateKey, nonce uint64, typ core.TxType, value int64, payload any) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(chainID, typ, priv.Public().Hex(), nonce, big.NewInt(value), payload)
	require.NoError(t, err)
	tx.Sign(priv)
	return tx
}

func TestSendCallAndQuery(t *testing.T) {
	n := newNode(t)
	alice := n.fund(t, 100)
	bob := n.fund(t, 100)

	resp := dispatch(n.handler, "sendCall", signedCall(t, alice, 0, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"}))
	require.Nil(t, resp.Error)
	receipt, ok := resp.Result.(*core.Receipt)
	require.True(t, ok, "unexpected result type %T", resp.Result)
	assert.Equal(t, uint64(1), receipt.Seq)

	resp = dispatch(n.handler, "sendCall", signedCall(t, bob, 0, core.TxCreateAnswer, 1, core.CreateAnswerPayload{QuestionID: 1, Content: "a"}))
	require.Nil(t, resp.Error)

	resp = dispatch(n.handler, "getQuestion", map[string]any{"id": 1})
	require.Nil(t, resp.Error)
	q := resp.Result.(*core.Question)
	require.Len(t, q.Answers, 1)
	assert.Equal(t, bob.Public().Hex(), q.Answers[0].Author)

	resp = dispatch(n.handler, "listQuestions", nil)
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result.(map[uint32]*core.Question), 1)

	resp = dispatch(n.handler, "getStake", map[string]string{"account": alice.Public().Hex()})
	require.Nil(t, resp.Error)
	assert.Equal(t, int64(10), resp.Result.(map[string]any)["stake"].(*big.Int).Int64())

	resp = dispatch(n.handler, "getQuestionsByAuthor", map[string]string{"author": alice.Public().Hex()})
	require.Nil(t, resp.Error)
	assert.Equal(t, []uint32{1}, resp.Result)

	resp = dispatch(n.handler, "getAnswersByAuthor", map[string]string{"author": bob.Public().Hex()})
	require.Nil(t, resp.Error)
	assert.Equal(t, []indexer.AnswerRef{{QuestionID: 1, AnswerID: 1}}, resp.Result)

	resp = dispatch(n.handler, "getReceipt", map[string]any{"seq": 2})
	require.Nil(t, resp.Error)
	assert.Equal(t, core.TxCreateAnswer, resp.Result.(*core.Receipt).Type)

	resp = dispatch(n.handler, "getHeight", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, uint64(2), resp.Result)
}

func TestLedgerErrorCodes(t *testing.T) {
	n := newNode(t)
	alice := n.fund(t, 100)
	bob := n.fund(t, 100)

	resp := dispatch(n.handler, "sendCall", signedCall(t, alice, 0, core.TxCreateQuestion, 9, core.CreateQuestionPayload{Content: "q"}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeDepositTooLow, resp.Error.Code)

	resp = dispatch(n.handler, "sendCall", signedCall(t, alice, 0, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"}))
	require.Nil(t, resp.Error)

	resp = dispatch(n.handler, "sendCall", signedCall(t, bob, 0, core.TxSetCorrectAnswer, 0, core.SetCorrectAnswerPayload{QuestionID: 1, AnswerID: 1}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeNotAuthor, resp.Error.Code)

	resp = dispatch(n.handler, "sendCall", signedCall(t, bob, 0, core.TxCreateAnswer, 1, core.CreateAnswerPayload{QuestionID: 42}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeQuestionNotFound, resp.Error.Code)

	resp = dispatch(n.handler, "getQuestion", map[string]any{"id": 7})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeQuestionNotFound, resp.Error.Code)

	resp = dispatch(n.handler, "getReceipt", map[string]any{"call_id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeNotFound, resp.Error.Code)
}

func TestInvalidParams(t *testing.T) {
	n := newNode(t)

	for _, tc := range []struct {
		method string
		params any
	}{
		{"getQuestion", map[string]any{}},
		{"getStake", map[string]string{"account": ""}},
		{"getBalance", map[string]string{}},
		{"getReceipt", map[string]any{}},
		{"getQuestionsByAuthor", map[string]string{}},
	} {
		resp := dispatch(n.handler, tc.method, tc.params)
		require.NotNil(t, resp.Error, tc.method)
		assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code, tc.method)
	}

	resp := dispatch(n.handler, "mintTokens", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestSendCallRejectsOtherChain(t *testing.T) {
	n := newNode(t)
	alice := n.fund(t, 100)
	tx, err := core.NewTransaction("mainnet", core.TxCreateQuestion, alice.Public().Hex(), 0, big.NewInt(10), core.CreateQuestionPayload{})
	require.NoError(t, err)
	tx.Sign(alice)

	resp := dispatch(n.handler, "sendCall", tx)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestClientOverHTTP(t *testing.T) {
	n := newNode(t)
	alice := n.fund(t, 100)
	srv := rpc.NewServer("127.0.0.1:0", n.handler, rpc.ServerOptions{
		AuthToken: "tok",
		Metrics:   n.metrics,
		Gatherer:  n.reg,
	})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()
	ctx := context.Background()

	var height uint64
	err := rpc.NewClient(ts.URL, "wrong").Call(ctx, "getHeight", nil, &height)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)

	client := rpc.NewClient(ts.URL, "tok")
	var receipt core.Receipt
	require.NoError(t, client.Call(ctx, "sendCall", signedCall(t, alice, 0, core.TxCreateQuestion, 12, core.CreateQuestionPayload{Content: "q"}), &receipt))
	assert.Equal(t, uint64(1), receipt.Seq)

	var questions map[uint32]*core.Question
	require.NoError(t, client.Call(ctx, "listQuestions", nil, &questions))
	require.Contains(t, questions, uint32(1))
	assert.Equal(t, int64(12), questions[1].Reward.Int64())

	err = client.Call(ctx, "getQuestion", map[string]any{"id": 9}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeQuestionNotFound, rpcErr.Code)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "tolask_rpc_request_duration_seconds"))
	assert.True(t, strings.Contains(string(body), "tolask_calls_total"))
}

func TestClientOverMutualTLS(t *testing.T) {
	n := newNode(t)
	dir := t.TempDir()
	require.NoError(t, certgen.Generate(dir, "node0", []string{"alice"}, nil))

	serverTLS, err := config.ServerTLS(config.TLSConfig{
		CACert: filepath.Join(dir, "ca.crt"),
		Cert:   filepath.Join(dir, "server.crt"),
		Key:    filepath.Join(dir, "server.key"),
	})
	require.NoError(t, err)
	srv := rpc.NewServer("127.0.0.1:0", n.handler, rpc.ServerOptions{TLS: serverTLS})
	require.NoError(t, srv.Start())
	defer srv.Stop()
	url := "https://" + srv.Addr()
	ctx := context.Background()

	clientTLS, err := config.ClientTLS(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "alice.crt"), filepath.Join(dir, "alice.key"))
	require.NoError(t, err)
	var height uint64
	require.NoError(t, rpc.NewClient(url, "").WithTLS(clientTLS).Call(ctx, "getHeight", nil, &height))
	assert.Equal(t, uint64(0), height)

	// Without a client certificate the handshake is refused.
	anonTLS, err := config.ClientTLS(filepath.Join(dir, "ca.crt"), "", "")
	require.NoError(t, err)
	assert.Error(t, rpc.NewClient(url, "").WithTLS(anonTLS).Call(ctx, "getHeight", nil, &height))
}
