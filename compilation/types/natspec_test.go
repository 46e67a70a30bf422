package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNatspecFold(t *testing.T) {
	userdoc := json.RawMessage(`{
		"version": 1,
		"kind": "user",
		"notice": "A simple token",
		"methods": {
			"transfer(address,uint256)": {"notice": "Moves tokens"}
		}
	}`)
	devdoc := json.RawMessage(`{
		"version": 1,
		"kind": "dev",
		"title": "Token",
		"author": "example",
		"methods": {
			"transfer(address,uint256)": {
				"details": "Reverts on insufficient balance",
				"params": {"to": "recipient", "amount": "value moved"},
				"custom:security": "audited"
			}
		}
	}`)

	folded, err := NewNatspec(userdoc, devdoc).Fold()
	require.NoError(t, err)

	// transfer(address,uint256) folds under its 4-byte selector.
	entry, ok := folded["a9059cbb"]
	require.True(t, ok, "method should be keyed by selector")
	method := entry.(*MethodDoc)
	assert.Equal(t, "Moves tokens", method.Notice)
	assert.Equal(t, "Reverts on insufficient balance", method.Details)
	assert.Equal(t, "recipient", method.Params["to"])
	// Unknown developer keys are retained verbatim.
	require.Contains(t, method.Extra, "custom:security")

	// Contract-level documentation folds under the sentinel key.
	contractEntry, ok := folded[NatspecContractKey]
	require.True(t, ok)
	contract := contractEntry.(*ContractDoc)
	assert.Equal(t, "Token", contract.Title)
	assert.Equal(t, "A simple token", contract.Notice)
}

func TestNatspecFoldUnresolvableSignature(t *testing.T) {
	devdoc := json.RawMessage(`{"methods": {"not a signature": {"details": "kept"}}}`)
	folded, err := NewNatspec(nil, devdoc).Fold()
	require.NoError(t, err)

	// A key that is not a canonical signature stays as-is.
	entry, ok := folded["not a signature"]
	require.True(t, ok)
	assert.Equal(t, "kept", entry.(*MethodDoc).Details)
}

func TestNatspecFoldEmpty(t *testing.T) {
	folded, err := NewNatspec(nil, nil).Fold()
	require.NoError(t, err)
	assert.Empty(t, folded)
}
