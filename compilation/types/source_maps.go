package types

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// SourceMapJumpType describes the jump type field of a source map element.
type SourceMapJumpType string

const (
	// SourceMapJumpTypeNone indicates no jump type was provided for a source map element.
	SourceMapJumpTypeNone SourceMapJumpType = ""

	// SourceMapJumpTypeJumpIn indicates a source map element that is jumping into a function.
	SourceMapJumpTypeJumpIn SourceMapJumpType = "i"

	// SourceMapJumpTypeJumpOut indicates a source map element that is jumping out of a function.
	SourceMapJumpTypeJumpOut SourceMapJumpType = "o"

	// SourceMapJumpTypeJumpWithin indicates a source map element that is jumping within the same function, e.g. for
	// loops.
	SourceMapJumpTypeJumpWithin SourceMapJumpType = "-"
)

// SourceMap describes the parsed elements of a compressed compiler source map, one per bytecode instruction.
type SourceMap []SourceMapElement

// SourceMapElement describes a single element of a source map output by the compiler, describing the byte range of
// source which a given instruction maps to.
type SourceMapElement struct {
	// Index refers to the index of the SourceMapElement within its parent SourceMap, equal to the index of the
	// instruction it maps to.
	Index int

	// Offset refers to the byte offset which marks the start of the source range the instruction maps to.
	Offset int

	// Length refers to the byte length of the source range the instruction maps to.
	Length int

	// FileID refers to the identifier of the source file the range belongs to, as assigned by the compiler. A value
	// of -1 indicates compiler-generated code with no matching source.
	FileID int

	// JumpType refers to the SourceMapJumpType of the instruction.
	JumpType SourceMapJumpType

	// ModifierDepth refers to the modifier call depth at this instruction (solc >= 0.6).
	ModifierDepth int
}

// ParseSourceMap takes a compressed source map string emitted by the compiler and parses it into a SourceMap.
// Elements are semicolon-separated; fields within an element are colon-separated and inherit from the previous
// element when omitted. Returns the parsed map, or an error when a field is not numeric.
func ParseSourceMap(sourceMapStr string) (SourceMap, error) {
	// An empty source map parses to no elements, as is the case for interfaces and unlinked artifacts.
	if sourceMapStr == "" {
		return SourceMap{}, nil
	}

	// Each element inherits any omitted field from its predecessor, so parse while carrying the current state.
	var err error
	sourceMap := make(SourceMap, 0)
	current := SourceMapElement{
		Index:         -1,
		Offset:        -1,
		Length:        -1,
		FileID:        -1,
		JumpType:      SourceMapJumpTypeNone,
		ModifierDepth: 0,
	}
	for i, element := range strings.Split(sourceMapStr, ";") {
		current.Index = i

		fields := strings.Split(element, ":")
		if len(fields) > 0 && fields[0] != "" {
			if current.Offset, err = strconv.Atoi(fields[0]); err != nil {
				return nil, err
			}
		}
		if len(fields) > 1 && fields[1] != "" {
			if current.Length, err = strconv.Atoi(fields[1]); err != nil {
				return nil, err
			}
		}
		if len(fields) > 2 && fields[2] != "" {
			if current.FileID, err = strconv.Atoi(fields[2]); err != nil {
				return nil, err
			}
		}
		if len(fields) > 3 && fields[3] != "" {
			current.JumpType = SourceMapJumpType(fields[3])
		}
		if len(fields) > 4 && fields[4] != "" {
			if current.ModifierDepth, err = strconv.Atoi(fields[4]); err != nil {
				return nil, err
			}
		}

		sourceMap = append(sourceMap, current)
	}
	return sourceMap, nil
}

// pushOpcodeMin and pushOpcodeMax bound the EVM PUSH1..PUSH32 opcode range; the operand width is opcode-pushOpcodeMin+1.
const (
	pushOpcodeMin = 0x60
	pushOpcodeMax = 0x7f
)

// InstructionCount returns the number of EVM instructions in the provided bytecode, accounting for PUSH operand
// widths. Each source map element corresponds to one instruction.
func InstructionCount(bytecode []byte) int {
	count := 0
	for offset := 0; offset < len(bytecode); count++ {
		opcode := bytecode[offset]
		offset++
		if opcode >= pushOpcodeMin && opcode <= pushOpcodeMax {
			offset += int(opcode) - pushOpcodeMin + 1
		}
	}
	return count
}

// InstructionCountHex returns the instruction count of a hex bytecode template. Library placeholder tokens are
// treated as the zero address they will be linked over; a malformed template counts as zero instructions.
func InstructionCountHex(bytecodeHex string) int {
	normalized := strings.TrimPrefix(bytecodeHex, "0x")
	normalized = libraryPlaceholderPattern.ReplaceAllString(normalized, strings.Repeat("0", placeholderLength))
	bytecode, err := hex.DecodeString(normalized)
	if err != nil {
		return 0
	}
	return InstructionCount(bytecode)
}
