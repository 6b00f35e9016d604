package vm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/vm"
)

func TestRegistryDispatch(t *testing.T) {
	r := vm.NewRegistry()
	r.Register(core.TxCreateQuestion, func(_ *vm.Context, payload json.RawMessage) (any, error) {
		return &core.Outcome{QuestionID: 7}, nil
	})

	res, err := r.Execute(core.TxCreateQuestion, nil, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), res.(*core.Outcome).QuestionID)

	_, err = r.Execute(core.TxUpvoteAnswer, nil, nil)
	assert.ErrorContains(t, err, "no handler registered for call type")

	assert.Panics(t, func() {
		r.Register(core.TxCreateQuestion, func(*vm.Context, json.RawMessage) (any, error) { return nil, nil })
	})
}
