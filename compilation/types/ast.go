package types

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// ContractKind describes the kind of a contract definition within an AST.
type ContractKind string

const (
	// ContractKindContract refers to a definition introduced with the contract keyword.
	ContractKindContract ContractKind = "contract"
	// ContractKindLibrary refers to a definition introduced with the library keyword.
	ContractKindLibrary ContractKind = "library"
	// ContractKindInterface refers to a definition introduced with the interface keyword.
	ContractKindInterface ContractKind = "interface"
)

// srcPattern matches the start:length:file triplet solc uses in every src attribute.
var srcPattern = regexp.MustCompile(`(\d+):(\d+):([\d-]+)`)

// ContractDefinition describes one contract-level node of a Solidity AST, covering the fields the artifact pipeline
// classifies contracts with. Remaining node content is not retained.
type ContractDefinition struct {
	// ID is the compiler-assigned node identifier.
	ID int `json:"id"`

	// Name is the contract name as written in source.
	Name string `json:"name"`

	// CanonicalName is the fully qualified name, when the compiler emits one.
	CanonicalName string `json:"canonicalName"`

	// Kind classifies the definition as a contract, library, or interface.
	Kind ContractKind `json:"contractKind"`

	// Abstract indicates the contract was declared abstract (solc >= 0.6).
	Abstract bool `json:"abstract"`

	// ContractDependencies lists node identifiers of contracts this definition creates or inherits from.
	ContractDependencies []int `json:"contractDependencies"`

	// LinearizedBaseContracts lists node identifiers of the C3-linearized inheritance chain, own node first.
	LinearizedBaseContracts []int `json:"linearizedBaseContracts"`

	// Src is the start:length:file source range of the definition.
	Src string `json:"src"`
}

// AST describes the slice of a compiled source file's syntax tree the pipeline consumes: the file identity recorded
// by the compiler and its contract definitions. Both the compact (nodeType-keyed) and the legacy (name/attributes)
// encodings are accepted.
type AST struct {
	// AbsolutePath is the source path as recorded by the compiler in the tree root.
	AbsolutePath string

	// Src is the source range of the root node.
	Src string

	// Contracts lists every contract definition found at the top level of the file.
	Contracts []ContractDefinition
}

// SourceUnitID returns the compiler-assigned numeric file identifier extracted from the root src attribute, used to
// correlate source map entries with files. Returns -1 when the tree does not carry one.
func (a *AST) SourceUnitID() int {
	id, ok := sourceIndexOf(a.Src)
	if !ok {
		return -1
	}
	return id
}

// sourceIndexOf extracts the third field of a start:length:file source range.
func sourceIndexOf(src string) (int, bool) {
	match := srcPattern.FindStringSubmatch(src)
	if match == nil {
		return 0, false
	}
	id, err := strconv.Atoi(match[3])
	if err != nil {
		return 0, false
	}
	return id, true
}

// compactASTNode mirrors the compact AST encoding for the fields relevant to contract discovery.
type compactASTNode struct {
	NodeType     string            `json:"nodeType"`
	AbsolutePath string            `json:"absolutePath"`
	Src          string            `json:"src"`
	Nodes        []json.RawMessage `json:"nodes"`
}

// legacyASTNode mirrors the legacy AST encoding (solc < 0.8 --ast-json), where node kinds live under name and node
// fields under attributes.
type legacyASTNode struct {
	Name       string            `json:"name"`
	ID         int               `json:"id"`
	Src        string            `json:"src"`
	Attributes json.RawMessage   `json:"attributes"`
	Children   []json.RawMessage `json:"children"`
}

// legacyContractAttributes mirrors the attributes object of a legacy ContractDefinition node.
type legacyContractAttributes struct {
	Name                    string       `json:"name"`
	ContractKind            ContractKind `json:"contractKind"`
	FullyImplemented        *bool        `json:"fullyImplemented"`
	LinearizedBaseContracts []int        `json:"linearizedBaseContracts"`
	ContractDependencies    []int        `json:"contractDependencies"`
	AbsolutePath            string       `json:"absolutePath"`
}

// ParseAST decodes a raw AST document in either encoding. A document without recognizable structure produces an empty
// AST rather than an error, as several framework artifact formats wrap or omit parts of the tree.
func ParseAST(data []byte) (*AST, error) {
	if len(data) == 0 {
		return &AST{}, nil
	}

	var compact compactASTNode
	if err := json.Unmarshal(data, &compact); err != nil {
		return nil, err
	}

	ast := &AST{AbsolutePath: compact.AbsolutePath, Src: compact.Src}

	// A compact tree identifies itself through nodeType; anything else is retried as a legacy tree.
	if compact.NodeType != "" {
		for _, rawNode := range compact.Nodes {
			var header struct {
				NodeType string `json:"nodeType"`
			}
			if err := json.Unmarshal(rawNode, &header); err != nil || header.NodeType != "ContractDefinition" {
				continue
			}
			var definition ContractDefinition
			if err := json.Unmarshal(rawNode, &definition); err != nil {
				continue
			}
			if definition.Kind == "" {
				definition.Kind = ContractKindContract
			}
			ast.Contracts = append(ast.Contracts, definition)
		}
		return ast, nil
	}

	var legacy legacyASTNode
	if err := json.Unmarshal(data, &legacy); err != nil {
		return ast, nil
	}
	ast.Src = legacy.Src
	if len(legacy.Attributes) > 0 {
		var attributes legacyContractAttributes
		if err := json.Unmarshal(legacy.Attributes, &attributes); err == nil {
			ast.AbsolutePath = attributes.AbsolutePath
		}
	}
	for _, rawChild := range legacy.Children {
		var child legacyASTNode
		if err := json.Unmarshal(rawChild, &child); err != nil || child.Name != "ContractDefinition" {
			continue
		}
		var attributes legacyContractAttributes
		if len(child.Attributes) > 0 {
			if err := json.Unmarshal(child.Attributes, &attributes); err != nil {
				continue
			}
		}
		kind := attributes.ContractKind
		if kind == "" {
			kind = ContractKindContract
		}
		ast.Contracts = append(ast.Contracts, ContractDefinition{
			ID:                      child.ID,
			Name:                    attributes.Name,
			Kind:                    kind,
			ContractDependencies:    attributes.ContractDependencies,
			LinearizedBaseContracts: attributes.LinearizedBaseContracts,
			Src:                     child.Src,
		})
	}
	return ast, nil
}

// ContractNamed returns the definition carrying the provided name, or nil when the file does not define it.
func (a *AST) ContractNamed(name string) *ContractDefinition {
	for i := range a.Contracts {
		if a.Contracts[i].Name == name {
			return &a.Contracts[i]
		}
	}
	return nil
}
