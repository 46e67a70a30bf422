package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseSourceMapInheritance verifies omitted fields inherit from the previous element.
func TestParseSourceMapInheritance(t *testing.T) {
	sourceMap, err := ParseSourceMap("0:100:0:-:0;;10:5;:8:1:i")
	require.NoError(t, err)
	require.Len(t, sourceMap, 4)

	assert.Equal(t, SourceMapElement{Index: 0, Offset: 0, Length: 100, FileID: 0, JumpType: SourceMapJumpTypeJumpWithin, ModifierDepth: 0}, sourceMap[0])
	// Fully empty element inherits everything.
	assert.Equal(t, 1, sourceMap[1].Index)
	assert.Equal(t, 0, sourceMap[1].Offset)
	assert.Equal(t, 100, sourceMap[1].Length)
	// Partial element updates only the provided fields.
	assert.Equal(t, 10, sourceMap[2].Offset)
	assert.Equal(t, 5, sourceMap[2].Length)
	assert.Equal(t, 0, sourceMap[2].FileID)
	// Later element keeps the new offset, changes length and file, and sets a jump type.
	assert.Equal(t, 10, sourceMap[3].Offset)
	assert.Equal(t, 8, sourceMap[3].Length)
	assert.Equal(t, 1, sourceMap[3].FileID)
	assert.Equal(t, SourceMapJumpTypeJumpIn, sourceMap[3].JumpType)
}

// TestParseSourceMapEmpty verifies an empty string parses to an empty map.
func TestParseSourceMapEmpty(t *testing.T) {
	sourceMap, err := ParseSourceMap("")
	require.NoError(t, err)
	assert.Empty(t, sourceMap)
}

// TestParseSourceMapInvalid verifies non-numeric fields produce an error.
func TestParseSourceMapInvalid(t *testing.T) {
	_, err := ParseSourceMap("0:abc:0")
	assert.Error(t, err)
}

// TestInstructionCount verifies PUSH operand bytes are not counted as instructions.
func TestInstructionCount(t *testing.T) {
	// PUSH1 0x80, PUSH1 0x40, MSTORE, PUSH32 <32 bytes>, STOP
	bytecode := append([]byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x7f}, make([]byte, 32)...)
	bytecode = append(bytecode, 0x00)
	assert.Equal(t, 5, InstructionCount(bytecode))
}

// TestInstructionCountHex verifies hex templates count like raw bytecode, with placeholders treated as the address
// they link to.
func TestInstructionCountHex(t *testing.T) {
	// PUSH20 <library placeholder>, STOP: one PUSH20, one STOP.
	template := "73" + LibraryPlaceholder("MathLib") + "00"
	assert.Equal(t, 2, InstructionCountHex(template))
	// PUSH1 0x80, PUSH1 0x00, STOP with a 0x prefix.
	assert.Equal(t, 3, InstructionCountHex("0x6080600000"))
}

// TestSourceMapMatchesInstructionCount exercises the per-instruction pairing between a source map and its bytecode.
func TestSourceMapMatchesInstructionCount(t *testing.T) {
	// Four instructions and four source map elements.
	bytecodeHex := "6080604052" + "00"
	sourceMapStr := "0:1:0;;;"
	sourceMap, err := ParseSourceMap(sourceMapStr)
	require.NoError(t, err)
	assert.Equal(t, len(sourceMap), InstructionCountHex(bytecodeHex))
	assert.Equal(t, len(strings.Split(sourceMapStr, ";")), len(sourceMap))
}
