package types

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Project is the root of the canonical model: one compile (or import) of one target. It owns the compilation units
// produced by the platform adapter and the project-wide filename identity index every adapter resolves paths
// through. The index is guarded, as independent units may be compiled in parallel.
type Project struct {
	// Target is the target specifier exactly as the caller provided it.
	Target string

	// WorkingDirectory is the canonicalized directory compilation was anchored to.
	WorkingDirectory string

	// Platform is the identifier of the platform adapter which produced the units.
	Platform string

	// CompilationUnits maps unit identifiers to their compilation output.
	CompilationUnits map[string]*CompilationUnit

	// Libraries carries the library addresses provided by the caller (or generated on request) for linking.
	Libraries map[string]string

	// Package is the npm package name of the target, when a package.json declares one.
	Package string

	// UnitTests lists the test commands guessed by the platform adapter.
	UnitTests []string

	lock      sync.RWMutex
	filenames map[string]*Filename
	aliases   map[string]string
}

// NewProject creates an empty project for a target, anchored at the provided working directory.
func NewProject(target string, workingDirectory string) *Project {
	return &Project{
		Target:           target,
		WorkingDirectory: canonicalPath(workingDirectory),
		CompilationUnits: make(map[string]*CompilationUnit),
		Libraries:        make(map[string]string),
		filenames:        make(map[string]*Filename),
		aliases:          make(map[string]string),
	}
}

// InternFilename installs a resolved identity into the project index, or returns the identity already registered for
// the same absolute path. Distinct used strings resolving to one absolute path share one identity; later display
// facets are remembered as lookup aliases without replacing the first-seen instance.
func (p *Project) InternFilename(filename Filename) *Filename {
	p.lock.Lock()
	defer p.lock.Unlock()

	if existing, ok := p.filenames[filename.Absolute]; ok {
		p.recordAliases(filename, existing.Absolute)
		return existing
	}

	interned := &Filename{
		Absolute: filename.Absolute,
		Relative: filename.Relative,
		Short:    filename.Short,
		Used:     filename.Used,
	}
	p.filenames[filename.Absolute] = interned
	p.recordAliases(filename, filename.Absolute)
	return interned
}

// recordAliases maps every display facet of an identity back to its absolute path. Callers hold the write lock.
func (p *Project) recordAliases(filename Filename, absolute string) {
	for _, facet := range []string{filename.Relative, filename.Short, filename.Used} {
		if facet == "" || facet == absolute {
			continue
		}
		if _, taken := p.aliases[facet]; !taken {
			p.aliases[facet] = absolute
		}
	}
}

// LookupFilename resolves any of the four facets of a previously interned identity back to that identity.
func (p *Project) LookupFilename(path string) (*Filename, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if filename, ok := p.filenames[path]; ok {
		return filename, true
	}
	if absolute, ok := p.aliases[path]; ok {
		return p.filenames[absolute], true
	}
	return nil, false
}

// Filenames returns every identity registered in the project, ordered by absolute path.
func (p *Project) Filenames() []*Filename {
	p.lock.RLock()
	defer p.lock.RUnlock()

	keys := maps.Keys(p.filenames)
	slices.Sort(keys)
	filenames := make([]*Filename, 0, len(keys))
	for _, key := range keys {
		filenames = append(filenames, p.filenames[key])
	}
	return filenames
}

// AddCompilationUnit installs a unit into the project. A colliding identifier gets a synthetic suffix rather than
// silently replacing the earlier unit.
func (p *Project) AddCompilationUnit(unit *CompilationUnit) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, exists := p.CompilationUnits[unit.ID]; exists {
		unit.ID = NewUnitID("")
	}
	p.CompilationUnits[unit.ID] = unit
}

// SortedUnitIDs returns the unit identifiers in lexicographic order, the ordering used by exports.
func (p *Project) SortedUnitIDs() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()

	ids := maps.Keys(p.CompilationUnits)
	slices.Sort(ids)
	return ids
}

// SortedUnits returns the compilation units ordered by identifier.
func (p *Project) SortedUnits() []*CompilationUnit {
	units := make([]*CompilationUnit, 0, len(p.CompilationUnits))
	for _, id := range p.SortedUnitIDs() {
		units = append(units, p.CompilationUnits[id])
	}
	return units
}

// ContractNames returns the names of every contract across all units, sorted and de-duplicated.
func (p *Project) ContractNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, unit := range p.SortedUnits() {
		for _, name := range unit.ContractNames() {
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

// FilenameOfContract returns the identity of the file defining the named contract, searching units in identifier
// order.
func (p *Project) FilenameOfContract(name string) (*Filename, bool) {
	for _, unit := range p.SortedUnits() {
		if _, sourceUnit, ok := unit.ContractByName(name); ok {
			return sourceUnit.Filename, true
		}
	}
	return nil, false
}
