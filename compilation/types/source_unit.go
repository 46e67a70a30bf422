package types

import (
	"encoding/json"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SourceUnit represents one source file's slice of a compilation unit: its identity, its syntax tree, and every
// contract the compiler found in it.
type SourceUnit struct {
	// Filename is the interned identity of the source file.
	Filename *Filename

	// Ast is the syntax tree of the file as emitted by the compiler, kept verbatim.
	Ast json.RawMessage

	// ID is the compiler-assigned numeric file identifier referenced by source maps. -1 when unknown.
	ID int

	// Content holds the source text when the producing platform had it available (archives, verification fetches).
	Content string

	// IsDependency indicates the file lives in a vendor directory of the producing platform.
	IsDependency bool

	// Contracts maps contract names to their compiled artifacts.
	Contracts map[string]*CompiledContract

	parsedAst *AST
}

// NewSourceUnit creates a SourceUnit for the given file identity and raw syntax tree.
func NewSourceUnit(filename *Filename, ast json.RawMessage) *SourceUnit {
	unit := &SourceUnit{
		Filename:  filename,
		Ast:       ast,
		ID:        -1,
		Contracts: make(map[string]*CompiledContract),
	}
	// The compiler-assigned file identifier is recoverable from the tree root when present.
	if parsed, err := unit.ParsedAst(); err == nil {
		unit.ID = parsed.SourceUnitID()
	}
	return unit
}

// ParsedAst returns the decoded view of the syntax tree, parsing it on first use.
func (s *SourceUnit) ParsedAst() (*AST, error) {
	if s.parsedAst != nil {
		return s.parsedAst, nil
	}
	parsed, err := ParseAST(s.Ast)
	if err != nil {
		return nil, err
	}
	s.parsedAst = parsed
	return parsed, nil
}

// AddContract installs a contract artifact into the source unit, replacing any previous artifact of the same name.
func (s *SourceUnit) AddContract(contract *CompiledContract) {
	s.Contracts[contract.Name] = contract
}

// ContractNames returns the names of the contracts defined in this file, sorted.
func (s *SourceUnit) ContractNames() []string {
	names := maps.Keys(s.Contracts)
	slices.Sort(names)
	return names
}
