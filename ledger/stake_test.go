package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/internal/testutil"
	"github.com/tolelom/tolask/ledger"
)

func TestStakeCreditDebit(t *testing.T) {
	stakes := ledger.NewStakeLedger(testutil.NewStateDB())

	bal, err := stakes.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Sign())

	require.NoError(t, stakes.Credit(alice, amount(10)))
	require.NoError(t, stakes.Credit(alice, amount(5)))
	require.NoError(t, stakes.Debit(alice, amount(15)))

	bal, err = stakes.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Sign())

	// A drained account keeps a zero entry; debiting it still fails.
	err = stakes.Debit(alice, amount(1))
	assert.ErrorIs(t, err, core.ErrInsufficientStake)
}

func TestStakeDebitWithoutEntry(t *testing.T) {
	state := testutil.NewStateDB()
	stakes := ledger.NewStakeLedger(state)

	err := stakes.Debit(bob, amount(0))
	require.ErrorIs(t, err, core.ErrInsufficientStake)

	_, err = state.GetStake(bob)
	assert.ErrorIs(t, err, core.ErrNotFound, "failed debit must not create an entry")
}

func TestStakeDebitInsufficient(t *testing.T) {
	stakes := ledger.NewStakeLedger(testutil.NewStateDB())
	require.NoError(t, stakes.Credit(alice, amount(9)))

	err := stakes.Debit(alice, amount(10))
	require.ErrorIs(t, err, core.ErrInsufficientStake)

	bal, err := stakes.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(amount(9)))
}

func TestStakeBeyondUint64(t *testing.T) {
	stakes := ledger.NewStakeLedger(testutil.NewStateDB())
	huge, ok := amount(0).SetString("340282366920938463463374607431768211455", 10) // 2^128-1
	require.True(t, ok)

	require.NoError(t, stakes.Credit(alice, huge))
	require.NoError(t, stakes.Credit(alice, huge))
	require.NoError(t, stakes.Debit(alice, huge))

	bal, err := stakes.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(huge))
}
