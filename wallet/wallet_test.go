package wallet

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolask/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate("c")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, SaveKey(path, "pw", w.PrivKey()))

	priv, err := LoadKey(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, w.PubKey(), priv.Public().Hex())

	_, err = LoadKey(path, "nope")
	assert.ErrorIs(t, err, ErrWrongPassword)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ks keystoreFile
	require.NoError(t, json.Unmarshal(data, &ks))
	assert.Equal(t, keystoreVersion, ks.Version)
	assert.Equal(t, kdfIterations, ks.KDF.Iterations)
}

func TestKeystoreRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":9}`), 0600))
	_, err := LoadKey(path, "pw")
	assert.ErrorContains(t, err, "unsupported keystore version")
}

func TestWalletBuildsSignedCalls(t *testing.T) {
	w, err := Generate("tolask-dev")
	require.NoError(t, err)

	ask, err := w.Ask(0, "How do I look?", big.NewInt(15))
	require.NoError(t, err)
	require.NoError(t, ask.Verify())
	assert.Equal(t, core.TxCreateQuestion, ask.Type)
	assert.Equal(t, "tolask-dev", ask.ChainID)
	assert.Equal(t, int64(15), ask.AttachedValue().Int64())

	accept, err := w.Accept(1, 3, 2)
	require.NoError(t, err)
	require.NoError(t, accept.Verify())
	assert.Equal(t, 0, accept.AttachedValue().Sign())
	var p core.SetCorrectAnswerPayload
	require.NoError(t, json.Unmarshal(accept.Payload, &p))
	assert.Equal(t, core.SetCorrectAnswerPayload{QuestionID: 3, AnswerID: 2}, p)

	up, err := w.Upvote(2, 3, 2, big.NewInt(5))
	require.NoError(t, err)
	up.Value = big.NewInt(6)
	assert.Error(t, up.Verify(), "value is covered by the signature")
}
