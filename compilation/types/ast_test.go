package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseASTCompact(t *testing.T) {
	raw := []byte(`{
		"nodeType": "SourceUnit",
		"absolutePath": "contracts/Token.sol",
		"src": "0:500:2",
		"nodes": [
			{"nodeType": "PragmaDirective", "src": "0:23:2"},
			{
				"nodeType": "ContractDefinition",
				"id": 44,
				"name": "Token",
				"canonicalName": "Token",
				"contractKind": "contract",
				"abstract": false,
				"contractDependencies": [12],
				"linearizedBaseContracts": [44, 12],
				"src": "25:400:2"
			},
			{
				"nodeType": "ContractDefinition",
				"id": 12,
				"name": "Base",
				"contractKind": "interface",
				"src": "430:60:2"
			}
		]
	}`)

	ast, err := ParseAST(raw)
	require.NoError(t, err)
	assert.Equal(t, "contracts/Token.sol", ast.AbsolutePath)
	assert.Equal(t, 2, ast.SourceUnitID())
	require.Len(t, ast.Contracts, 2)

	token := ast.ContractNamed("Token")
	require.NotNil(t, token)
	assert.Equal(t, 44, token.ID)
	assert.Equal(t, ContractKindContract, token.Kind)
	assert.Equal(t, []int{12}, token.ContractDependencies)

	base := ast.ContractNamed("Base")
	require.NotNil(t, base)
	assert.Equal(t, ContractKindInterface, base.Kind)
}

func TestParseASTLegacy(t *testing.T) {
	raw := []byte(`{
		"name": "SourceUnit",
		"src": "0:120:1",
		"attributes": {"absolutePath": "Token.sol"},
		"children": [
			{
				"name": "ContractDefinition",
				"id": 7,
				"src": "0:100:1",
				"attributes": {
					"name": "Token",
					"contractKind": "contract",
					"fullyImplemented": true,
					"linearizedBaseContracts": [7]
				}
			}
		]
	}`)

	ast, err := ParseAST(raw)
	require.NoError(t, err)
	assert.Equal(t, "Token.sol", ast.AbsolutePath)
	assert.Equal(t, 1, ast.SourceUnitID())
	require.Len(t, ast.Contracts, 1)
	assert.Equal(t, "Token", ast.Contracts[0].Name)
	assert.Equal(t, 7, ast.Contracts[0].ID)
}

func TestParseASTEmpty(t *testing.T) {
	ast, err := ParseAST(nil)
	require.NoError(t, err)
	assert.Empty(t, ast.Contracts)
	assert.Equal(t, -1, ast.SourceUnitID())
}

func TestParseASTAbstractContract(t *testing.T) {
	raw := []byte(`{
		"nodeType": "SourceUnit",
		"src": "0:50:0",
		"nodes": [
			{"nodeType": "ContractDefinition", "id": 1, "name": "Base", "contractKind": "contract", "abstract": true, "src": "0:40:0"}
		]
	}`)
	ast, err := ParseAST(raw)
	require.NoError(t, err)
	require.Len(t, ast.Contracts, 1)
	assert.True(t, ast.Contracts[0].Abstract)
}
