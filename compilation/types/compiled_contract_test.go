package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// erc20SubsetAbi is the ABI of a minimal token with one function and one event.
const erc20SubsetAbi = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}],"anonymous":false}
]`

func TestComputeHashes(t *testing.T) {
	contract := &CompiledContract{Name: "Token", Abi: json.RawMessage(erc20SubsetAbi)}
	require.NoError(t, contract.ComputeHashes())

	assert.Equal(t, uint64(0xa9059cbb), contract.FunctionHashes["transfer(address,uint256)"])
	assert.Equal(t, uint64(0x70a08231), contract.FunctionHashes["balanceOf(address)"])

	topic, ok := contract.EventTopics["Transfer(address,address,uint256)"]
	require.True(t, ok)
	assert.Equal(t, uint64(0xddf252ad), topic.Topic)
	assert.Equal(t, []bool{true, true, false}, topic.Indexed)
}

func TestComputeHashesEmptyAbi(t *testing.T) {
	contract := &CompiledContract{Name: "Empty"}
	require.NoError(t, contract.ComputeHashes())
	assert.Empty(t, contract.FunctionHashes)
	assert.Empty(t, contract.EventTopics)
}

func TestSelectorHex(t *testing.T) {
	selector, ok := SelectorHex("transfer(address,uint256)")
	require.True(t, ok)
	assert.Equal(t, "a9059cbb", selector)

	_, ok = SelectorHex("not a signature")
	assert.False(t, ok)
}

func TestClassifyKind(t *testing.T) {
	// The AST definition wins when available.
	library := &CompiledContract{Name: "MathLib", RuntimeBytecode: "6080"}
	library.ClassifyKind(&ContractDefinition{Name: "MathLib", Kind: ContractKindLibrary})
	assert.Equal(t, ContractKindLibrary, library.Kind)
	assert.True(t, library.IsLibrary())

	// Without an AST, the call-protection prefix identifies libraries.
	fallback := &CompiledContract{Name: "MathLib", RuntimeBytecode: LibraryIndicator + "6080"}
	fallback.ClassifyKind(nil)
	assert.Equal(t, ContractKindLibrary, fallback.Kind)

	// A plain contract without either signal stays unclassified.
	plain := &CompiledContract{Name: "Token", RuntimeBytecode: "6080"}
	plain.ClassifyKind(nil)
	assert.Empty(t, plain.Kind)
}

func TestDiscoverLibraries(t *testing.T) {
	tokenA := LibraryPlaceholder("LibA")
	tokenB := LibraryPlaceholderKeccak("c.sol:LibB")
	contract := &CompiledContract{
		InitBytecode:    "6080" + tokenA,
		RuntimeBytecode: "6040" + tokenA + tokenB,
	}
	contract.DiscoverLibraries()
	assert.Equal(t, []string{tokenA, tokenB}, contract.Libraries)
}

func TestParseABIFromInterface(t *testing.T) {
	// String form.
	fromString, err := ParseABIFromInterface(erc20SubsetAbi)
	require.NoError(t, err)
	assert.Contains(t, fromString.Methods, "transfer")

	// Unmarshalled form.
	var document any
	require.NoError(t, json.Unmarshal([]byte(erc20SubsetAbi), &document))
	fromValue, err := ParseABIFromInterface(document)
	require.NoError(t, err)
	assert.Contains(t, fromValue.Methods, "balanceOf")
}
