package vm_test

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/crypto"
	"github.com/tolelom/tolask/events"
	memtest "github.com/tolelom/tolask/internal/testutil"
	"github.com/tolelom/tolask/metrics"
	"github.com/tolelom/tolask/storage"
	"github.com/tolelom/tolask/vm"
	_ "github.com/tolelom/tolask/vm/modules/economy"
	_ "github.com/tolelom/tolask/vm/modules/qa"
)

const (
	testChain  = "tolask-test"
	testEscrow = "escrow"
)

type user struct {
	priv  crypto.PrivateKey
	addr  string
	nonce uint64
}

func newUser(t *testing.T) *user {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &user{priv: priv, addr: pub.Hex()}
}

// tx builds and signs the next call of u.
func (u *user) tx(t *testing.T, typ core.TxType, value int64, payload any) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(testChain, typ, u.addr, u.nonce, big.NewInt(value), payload)
	require.NoError(t, err)
	tx.Sign(u.priv)
	return tx
}

type harness struct {
	state    *storage.StateDB
	exec     *vm.Executor
	emitter  *events.Emitter
	metrics  *metrics.Metrics
	received []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	h := &harness{
		state:   memtest.NewStateDB(),
		emitter: events.NewEmitter(log),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	for _, typ := range []events.EventType{
		events.EventCallExecuted, events.EventValueTransfer, events.EventQuestionCreated,
		events.EventAnswerCreated, events.EventAnswerUpvoted, events.EventAnswerAccepted,
	} {
		h.emitter.Subscribe(typ, func(ev events.Event) { h.received = append(h.received, ev) })
	}
	h.exec = vm.NewExecutor(h.state, h.emitter, vm.Options{
		ChainID: testChain,
		Escrow:  testEscrow,
		Logger:  log,
		Metrics: h.metrics,
	})
	return h
}

func (h *harness) fund(t *testing.T, u *user, v int64) {
	t.Helper()
	acc, err := h.state.GetAccount(u.addr)
	require.NoError(t, err)
	acc.Balance = big.NewInt(v)
	require.NoError(t, h.state.SetAccount(acc))
}

func (h *harness) balance(t *testing.T, addr string) int64 {
	t.Helper()
	acc, err := h.state.GetAccount(addr)
	require.NoError(t, err)
	return acc.Balance.Int64()
}

// run executes and publishes tx and advances the signer's nonce on success.
func (h *harness) run(t *testing.T, u *user, tx *core.Transaction) (any, error) {
	t.Helper()
	ex, err := h.exec.ExecuteTx(tx)
	if err != nil {
		return nil, err
	}
	u.nonce++
	h.exec.Publish(ex)
	return ex.Result, nil
}

func (h *harness) eventTypes() []events.EventType {
	out := make([]events.EventType, 0, len(h.received))
	for _, ev := range h.received {
		out = append(out, ev.Type)
	}
	return out
}

func TestFullSettlementScenario(t *testing.T) {
	h := newHarness(t)
	a, b, c := newUser(t), newUser(t), newUser(t)
	h.fund(t, a, 100)
	h.fund(t, b, 100)
	h.fund(t, c, 100)

	res, err := h.run(t, a, a.tx(t, core.TxCreateQuestion, 15, core.CreateQuestionPayload{Content: "How do I look?"}))
	require.NoError(t, err)
	qid := res.(*core.Outcome).QuestionID
	assert.Equal(t, uint32(1), qid)
	assert.Equal(t, int64(85), h.balance(t, a.addr))
	assert.Equal(t, int64(15), h.balance(t, testEscrow))

	res, err = h.run(t, b, b.tx(t, core.TxCreateAnswer, 1, core.CreateAnswerPayload{QuestionID: qid, Content: "You look great!"}))
	require.NoError(t, err)
	aid := res.(*core.Outcome).AnswerID
	assert.Equal(t, uint32(1), aid)
	assert.Equal(t, int64(99), h.balance(t, b.addr))

	_, err = h.run(t, c, c.tx(t, core.TxUpvoteAnswer, 5, core.UpvoteAnswerPayload{QuestionID: qid, AnswerID: aid}))
	require.NoError(t, err)
	assert.Equal(t, int64(95), h.balance(t, c.addr))
	assert.Equal(t, int64(104), h.balance(t, b.addr))

	res, err = h.run(t, a, a.tx(t, core.TxSetCorrectAnswer, 0, core.SetCorrectAnswerPayload{QuestionID: qid, AnswerID: aid}))
	require.NoError(t, err)
	out := res.(*core.Outcome)
	assert.True(t, out.Answer.IsCorrect)
	assert.Equal(t, int64(20), out.Answer.Reward.Int64())
	assert.Equal(t, int64(119), h.balance(t, b.addr))
	// Only the answer fee stays in escrow.
	assert.Equal(t, int64(1), h.balance(t, testEscrow))

	stake, err := h.state.GetStake(a.addr)
	require.NoError(t, err)
	assert.Equal(t, 0, stake.Sign())

	assert.Equal(t, []events.EventType{
		events.EventQuestionCreated, events.EventCallExecuted,
		events.EventAnswerCreated, events.EventCallExecuted,
		events.EventValueTransfer, events.EventAnswerUpvoted, events.EventCallExecuted,
		events.EventValueTransfer, events.EventAnswerAccepted, events.EventCallExecuted,
	}, h.eventTypes())

	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.UpvoteValue))
	assert.Equal(t, 15.0, testutil.ToFloat64(h.metrics.SettledReward))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CallsTotal.WithLabelValues(string(core.TxSetCorrectAnswer), "ok")))
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	a, b := newUser(t), newUser(t)
	h.fund(t, a, 100)
	h.fund(t, b, 100)

	res, err := h.run(t, a, a.tx(t, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"}))
	require.NoError(t, err)
	qid := res.(*core.Outcome).QuestionID
	h.received = nil
	root := h.state.ComputeRoot()

	// Only the question author may settle it.
	_, err = h.run(t, b, b.tx(t, core.TxSetCorrectAnswer, 0, core.SetCorrectAnswerPayload{QuestionID: qid, AnswerID: 1}))
	require.ErrorIs(t, err, core.ErrNotAuthor)

	_, err = h.run(t, b, b.tx(t, core.TxCreateQuestion, 9, core.CreateQuestionPayload{Content: "cheap"}))
	require.ErrorIs(t, err, core.ErrDepositTooLow)

	_, err = h.run(t, b, b.tx(t, core.TxUpvoteAnswer, 3, core.UpvoteAnswerPayload{QuestionID: qid, AnswerID: 7}))
	require.ErrorIs(t, err, core.ErrAnswerNotFound)

	assert.Equal(t, root, h.state.ComputeRoot())
	assert.Equal(t, int64(100), h.balance(t, b.addr))
	acc, err := h.state.GetAccount(b.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), acc.Nonce)
	assert.Empty(t, h.received, "rejected calls emit nothing")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CallsTotal.WithLabelValues(string(core.TxCreateQuestion), "failed")))
}

func TestAttachedValueNeedsBalance(t *testing.T) {
	h := newHarness(t)
	a := newUser(t)
	h.fund(t, a, 5)

	_, err := h.run(t, a, a.tx(t, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"}))
	require.Error(t, err)
	assert.Equal(t, int64(5), h.balance(t, a.addr))
	assert.Equal(t, int64(0), h.balance(t, testEscrow))
}

func TestExecuteTxRejectsBadCalls(t *testing.T) {
	h := newHarness(t)
	a := newUser(t)
	h.fund(t, a, 100)

	t.Run("wrong chain", func(t *testing.T) {
		tx, err := core.NewTransaction("other", core.TxCreateQuestion, a.addr, 0, big.NewInt(10), core.CreateQuestionPayload{})
		require.NoError(t, err)
		tx.Sign(a.priv)
		_, err = h.exec.ExecuteTx(tx)
		assert.ErrorContains(t, err, "chain ID mismatch")
	})

	t.Run("tampered value", func(t *testing.T) {
		tx := a.tx(t, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"})
		tx.Value = big.NewInt(50)
		_, err := h.exec.ExecuteTx(tx)
		assert.ErrorContains(t, err, "signature")
	})

	t.Run("stale nonce", func(t *testing.T) {
		tx, err := core.NewTransaction(testChain, core.TxCreateQuestion, a.addr, 3, big.NewInt(10), core.CreateQuestionPayload{})
		require.NoError(t, err)
		tx.Sign(a.priv)
		_, err = h.exec.ExecuteTx(tx)
		assert.ErrorContains(t, err, "invalid nonce")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := h.exec.ExecuteTx(a.tx(t, core.TxType("mint"), 0, struct{}{}))
		assert.ErrorContains(t, err, "no handler registered")
	})
}

func TestTransferCall(t *testing.T) {
	h := newHarness(t)
	a, b := newUser(t), newUser(t)
	h.fund(t, a, 50)

	_, err := h.run(t, a, a.tx(t, core.TxTransfer, 0, core.TransferPayload{To: b.addr, Amount: big.NewInt(20)}))
	require.NoError(t, err)
	assert.Equal(t, int64(30), h.balance(t, a.addr))
	assert.Equal(t, int64(20), h.balance(t, b.addr))

	_, err = h.run(t, a, a.tx(t, core.TxTransfer, 1, core.TransferPayload{To: b.addr, Amount: big.NewInt(1)}))
	assert.ErrorContains(t, err, "attached value")

	_, err = h.run(t, a, a.tx(t, core.TxTransfer, 0, core.TransferPayload{To: b.addr, Amount: big.NewInt(31)}))
	assert.ErrorContains(t, err, "insufficient balance")
	assert.Equal(t, int64(30), h.balance(t, a.addr))
}

func TestEventsHeldUntilPublish(t *testing.T) {
	h := newHarness(t)
	a := newUser(t)
	h.fund(t, a, 100)

	ex, err := h.exec.ExecuteTx(a.tx(t, core.TxCreateQuestion, 10, core.CreateQuestionPayload{Content: "q"}))
	require.NoError(t, err)
	assert.Empty(t, h.received)
	require.Len(t, ex.Events, 2)

	h.exec.Publish(ex)
	assert.Equal(t, []events.EventType{events.EventQuestionCreated, events.EventCallExecuted}, h.eventTypes())
}
