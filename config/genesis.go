package config

import (
	"github.com/tolelom/tolask/core"
)

// ApplyGenesis credits every alloc account in state and commits. It is run
// once, while the journal is still empty, and returns the resulting root.
func ApplyGenesis(g GenesisConfig, state core.State) (string, error) {
	for pubkeyHex, balance := range g.Alloc {
		acc, err := state.GetAccount(pubkeyHex)
		if err != nil {
			return "", err
		}
		acc.Balance = core.NewAmount(balance)
		if err := state.SetAccount(acc); err != nil {
			return "", err
		}
	}
	root := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return "", err
	}
	return root, nil
}
