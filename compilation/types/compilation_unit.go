package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CompilationUnit represents the output of one compiler invocation: the compiler descriptor, the source files which
// participated, and their contracts. Units are populated by platform adapters and treated as read-only once the
// adapter returns; the link cache is the only state mutated afterwards.
type CompilationUnit struct {
	// ID uniquely identifies the unit within its project. Platforms derive it from a build artifact content hash
	// when one exists, otherwise a synthetic identifier is generated.
	ID string

	// Compiler describes the compiler and the settings this unit was produced with.
	Compiler CompilerConfig

	// SourceUnits maps Filename.Absolute to the per-file compiled output.
	SourceUnits map[string]*SourceUnit

	// order tracks source units in the order the compiler emitted them.
	order []string

	// linkCache stores fully linked bytecodes keyed by template/address-map fingerprint. Guarded by linkLock since
	// consumers may link concurrently.
	linkCache map[string]string
	linkLock  sync.Mutex
}

// NewCompilationUnit creates an empty compilation unit with the given identifier and compiler descriptor.
func NewCompilationUnit(id string, compiler CompilerConfig) *CompilationUnit {
	return &CompilationUnit{
		ID:          id,
		Compiler:    compiler,
		SourceUnits: make(map[string]*SourceUnit),
		linkCache:   make(map[string]string),
	}
}

// ContentUnitID derives a unit identifier from artifact content, so repeated compilations of identical artifacts
// produce the same unit key.
func ContentUnitID(content []byte) string {
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}

// NewUnitID returns the candidate identifier when it is usable, otherwise a random synthetic one. Targets such as
// "." carry no identity of their own.
func NewUnitID(candidate string) string {
	if candidate == "" || candidate == "." {
		return uuid.NewString()
	}
	return candidate
}

// AddSourceUnit installs a source unit, keyed by its absolute path. When the unit already holds output for that
// file, the existing source unit is returned so the caller can extend it instead.
func (u *CompilationUnit) AddSourceUnit(sourceUnit *SourceUnit) *SourceUnit {
	key := sourceUnit.Filename.Absolute
	if existing, ok := u.SourceUnits[key]; ok {
		return existing
	}
	u.SourceUnits[key] = sourceUnit
	u.order = append(u.order, key)
	return sourceUnit
}

// SourceUnitList returns the source units in the order the compiler emitted them.
func (u *CompilationUnit) SourceUnitList() []*SourceUnit {
	list := make([]*SourceUnit, 0, len(u.order))
	for _, key := range u.order {
		list = append(list, u.SourceUnits[key])
	}
	return list
}

// SortedSourceUnits returns the source units ordered by absolute path, the ordering every export format uses.
func (u *CompilationUnit) SortedSourceUnits() []*SourceUnit {
	keys := maps.Keys(u.SourceUnits)
	slices.Sort(keys)
	list := make([]*SourceUnit, 0, len(keys))
	for _, key := range keys {
		list = append(list, u.SourceUnits[key])
	}
	return list
}

// Filenames returns the identities of every file participating in this unit, ordered by absolute path.
func (u *CompilationUnit) Filenames() []*Filename {
	filenames := make([]*Filename, 0, len(u.SourceUnits))
	for _, sourceUnit := range u.SortedSourceUnits() {
		filenames = append(filenames, sourceUnit.Filename)
	}
	return filenames
}

// ContractByName returns the first contract carrying the provided name across the unit's source units, along with
// its source unit.
func (u *CompilationUnit) ContractByName(name string) (*CompiledContract, *SourceUnit, bool) {
	for _, sourceUnit := range u.SortedSourceUnits() {
		if contract, ok := sourceUnit.Contracts[name]; ok {
			return contract, sourceUnit, true
		}
	}
	return nil, nil, false
}

// ContractNames returns the names of every contract in the unit, sorted and de-duplicated.
func (u *CompilationUnit) ContractNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, sourceUnit := range u.SourceUnits {
		for name := range sourceUnit.Contracts {
			if _, duplicate := seen[name]; duplicate {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// MetadataOf decodes the metadata trailer of the named contract's deployed bytecode. Nil when the contract is
// unknown or carries no metadata.
func (u *CompilationUnit) MetadataOf(name string) ContractMetadata {
	contract, _, ok := u.ContractByName(name)
	if !ok {
		return nil
	}
	return contract.Metadata()
}

// linkTemplate links one bytecode template against an address map through the unit's cache.
func (u *CompilationUnit) linkTemplate(template string, libraries map[string]string) (string, error) {
	fingerprint := LinkFingerprint(template, libraries)

	u.linkLock.Lock()
	if linked, ok := u.linkCache[fingerprint]; ok {
		u.linkLock.Unlock()
		return linked, nil
	}
	u.linkLock.Unlock()

	// Qualified placeholders may reference any file in the unit, so every filename contributes candidates.
	filenames := make([]Filename, 0, len(u.SourceUnits))
	for _, sourceUnit := range u.SourceUnits {
		filenames = append(filenames, *sourceUnit.Filename)
	}
	linked, err := LinkBytecode(template, libraries, filenames...)
	if err != nil {
		return "", err
	}

	u.linkLock.Lock()
	u.linkCache[fingerprint] = linked
	u.linkLock.Unlock()
	return linked, nil
}

// LinkedInitBytecode returns the creation bytecode of the named contract with the provided library addresses
// substituted. Placeholders without an address are left intact; results are cached per address map.
func (u *CompilationUnit) LinkedInitBytecode(name string, libraries map[string]string) (string, error) {
	contract, _, ok := u.ContractByName(name)
	if !ok {
		return "", nil
	}
	return u.linkTemplate(contract.InitBytecode, libraries)
}

// LinkedRuntimeBytecode returns the deployed bytecode of the named contract with the provided library addresses
// substituted. Placeholders without an address are left intact; results are cached per address map.
func (u *CompilationUnit) LinkedRuntimeBytecode(name string, libraries map[string]string) (string, error) {
	contract, _, ok := u.ContractByName(name)
	if !ok {
		return "", nil
	}
	return u.linkTemplate(contract.RuntimeBytecode, libraries)
}

// DependencyGraph builds the contract dependency mapping of the unit, from each contract name to the names of the
// contracts it depends on. Dependencies resolve through AST node identifiers when available and are complemented by
// the libraries referenced from bytecode placeholders.
func (u *CompilationUnit) DependencyGraph() map[string][]string {
	// First index every contract definition node identifier across the unit.
	nodeNames := make(map[int]string)
	for _, sourceUnit := range u.SourceUnits {
		parsed, err := sourceUnit.ParsedAst()
		if err != nil {
			continue
		}
		for _, definition := range parsed.Contracts {
			nodeNames[definition.ID] = definition.Name
		}
	}

	graph := make(map[string][]string)
	for _, sourceUnit := range u.SourceUnits {
		for name, contract := range sourceUnit.Contracts {
			seen := make(map[string]struct{})
			var dependencies []string
			appendDependency := func(dependency string) {
				if dependency == "" || dependency == name {
					return
				}
				if _, duplicate := seen[dependency]; duplicate {
					return
				}
				seen[dependency] = struct{}{}
				dependencies = append(dependencies, dependency)
			}

			if parsed, err := sourceUnit.ParsedAst(); err == nil {
				if definition := parsed.ContractNamed(name); definition != nil {
					for _, nodeID := range definition.ContractDependencies {
						appendDependency(nodeNames[nodeID])
					}
					for _, nodeID := range definition.LinearizedBaseContracts {
						appendDependency(nodeNames[nodeID])
					}
				}
			}
			for _, token := range contract.Libraries {
				appendDependency(PlaceholderName(token))
			}

			slices.Sort(dependencies)
			graph[name] = dependencies
		}
	}
	return graph
}
