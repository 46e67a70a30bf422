package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LibraryIndicator is the prefix deployed bytecode starts with when the contract is a library: a PUSH20 of the zero
// address, which the compiler emits for the call-protection check. Used to classify contracts when no AST is
// available.
const LibraryIndicator = "730000000000000000000000000000000000000000"

// functionSignaturePattern matches a canonical function signature, name(argtypes).
var functionSignaturePattern = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$.]*\(.*\)$`)

// EventTopic describes the selector of one event along with which of its inputs are indexed.
type EventTopic struct {
	// Topic is the truncated numeric selector of the event, derived the same way as function selectors.
	Topic uint64

	// Indexed flags which event inputs are indexed, in declaration order.
	Indexed []bool
}

// CompiledContract represents a single deployable contract within a compiled source file.
type CompiledContract struct {
	// Name is the contract name as defined in source.
	Name string

	// Abi is the contract ABI document as emitted by the compiler, kept verbatim.
	Abi json.RawMessage

	// InitBytecode is the hex creation bytecode template, without a 0x prefix. It may contain library placeholder
	// tokens until linked.
	InitBytecode string

	// RuntimeBytecode is the hex deployed bytecode template, without a 0x prefix.
	RuntimeBytecode string

	// SrcMapsInit is the compressed source map of the creation bytecode.
	SrcMapsInit string

	// SrcMapsRuntime is the compressed source map of the deployed bytecode.
	SrcMapsRuntime string

	// Natspec carries the contract documentation documents.
	Natspec Natspec

	// Kind classifies the contract definition; empty when neither the AST nor the bytecode reveal it.
	Kind ContractKind

	// Abstract indicates the contract was declared abstract.
	Abstract bool

	// Libraries lists the placeholder tokens referenced by the bytecode templates, in order of first appearance.
	Libraries []string

	// Dependencies lists the names of contracts this contract directly depends on, sorted lexicographically.
	Dependencies []string

	// FunctionHashes maps canonical function signatures to their truncated numeric selectors.
	FunctionHashes map[string]uint64

	// EventTopics maps canonical event signatures to their topic selectors and indexed flags.
	EventTopics map[string]EventTopic

	parsedAbi *abi.ABI
}

// FunctionSelector computes the truncated numeric selector of a canonical signature: the first four bytes of its
// keccak256 hash, read big-endian.
func FunctionSelector(signature string) uint64 {
	hash := keccak256([]byte(signature))
	return uint64(binary.BigEndian.Uint32(hash[:4]))
}

// SelectorHex renders the 4-byte selector of a canonical function signature as 8 hex characters. The second return
// value is false when the input does not look like a function signature.
func SelectorHex(signature string) (string, bool) {
	if !functionSignaturePattern.MatchString(signature) {
		return "", false
	}
	return fmt.Sprintf("%08x", FunctionSelector(signature)), true
}

// ParseABI obtains the parsed go-ethereum representation of the contract ABI, caching the result. An empty or absent
// ABI parses as an empty interface list.
func (c *CompiledContract) ParseABI() (*abi.ABI, error) {
	if c.parsedAbi != nil {
		return c.parsedAbi, nil
	}
	document := string(c.Abi)
	if strings.TrimSpace(document) == "" || document == "null" {
		document = "[]"
	}
	parsed, err := abi.JSON(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("could not parse ABI for contract '%s': %v", c.Name, err)
	}
	c.parsedAbi = &parsed
	return c.parsedAbi, nil
}

// ComputeHashes fills FunctionHashes and EventTopics from the contract ABI. Contracts whose ABI does not parse keep
// both maps empty; the error is returned for the caller to log.
func (c *CompiledContract) ComputeHashes() error {
	parsed, err := c.ParseABI()
	if err != nil {
		return err
	}

	c.FunctionHashes = make(map[string]uint64, len(parsed.Methods))
	for _, method := range parsed.Methods {
		c.FunctionHashes[method.Sig] = uint64(binary.BigEndian.Uint32(method.ID[:4]))
	}

	c.EventTopics = make(map[string]EventTopic, len(parsed.Events))
	for _, event := range parsed.Events {
		indexed := make([]bool, len(event.Inputs))
		for i, input := range event.Inputs {
			indexed[i] = input.Indexed
		}
		c.EventTopics[event.Sig] = EventTopic{
			Topic:   uint64(binary.BigEndian.Uint32(event.ID[:4])),
			Indexed: indexed,
		}
	}
	return nil
}

// DiscoverLibraries fills Libraries from the placeholder tokens present in either bytecode template.
func (c *CompiledContract) DiscoverLibraries() {
	seen := make(map[string]struct{})
	c.Libraries = nil
	for _, token := range append(FindPlaceholders(c.InitBytecode), FindPlaceholders(c.RuntimeBytecode)...) {
		if _, duplicate := seen[token]; duplicate {
			continue
		}
		seen[token] = struct{}{}
		c.Libraries = append(c.Libraries, token)
	}
}

// ClassifyKind resolves the contract kind, preferring the AST definition and falling back to the library
// call-protection prefix in the deployed bytecode.
func (c *CompiledContract) ClassifyKind(definition *ContractDefinition) {
	if definition != nil && definition.Kind != "" {
		c.Kind = definition.Kind
		c.Abstract = definition.Abstract
		return
	}
	if strings.HasPrefix(strings.TrimPrefix(c.RuntimeBytecode, "0x"), LibraryIndicator) {
		c.Kind = ContractKindLibrary
	}
}

// IsLibrary indicates whether the contract is a library.
func (c *CompiledContract) IsLibrary() bool {
	return c.Kind == ContractKindLibrary
}

// Metadata decodes the metadata trailer of the deployed bytecode. Nil when none is present.
func (c *CompiledContract) Metadata() ContractMetadata {
	return ExtractContractMetadata(c.RuntimeBytecode)
}

// StripMetadata removes the metadata trailer from both bytecode templates in place. Templates without a trailer
// are left unchanged.
func (c *CompiledContract) StripMetadata() {
	c.InitBytecode = RemoveContractMetadata(c.InitBytecode)
	c.RuntimeBytecode = RemoveContractMetadata(c.RuntimeBytecode)
}

// NormalizeBytecodeString strips a 0x prefix from compiler-emitted bytecode, as templates are stored as bare hex.
func NormalizeBytecodeString(bytecode string) string {
	return strings.TrimPrefix(strings.TrimPrefix(bytecode, "0x"), "0X")
}

// ParseABIFromInterface accepts an ABI as either a JSON string or an unmarshalled document (as different framework
// artifacts provide either), and returns the parsed representation.
func ParseABIFromInterface(value any) (*abi.ABI, error) {
	var document string
	if text, ok := value.(string); ok {
		document = text
	} else {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		document = string(encoded)
	}
	parsed, err := abi.JSON(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
