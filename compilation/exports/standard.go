package exports

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// StandardExportFile is the artifact name the standard export writes under the export directory.
const StandardExportFile = "contracts.json"

// ExportedContract is the wire form of a single compiled contract in the standard export document.
type ExportedContract struct {
	// Abi is the contract ABI document, verbatim.
	Abi json.RawMessage `json:"abi"`

	// Bin is the creation bytecode template as bare hex, placeholders included.
	Bin string `json:"bin"`

	// BinRuntime is the deployed bytecode template as bare hex.
	BinRuntime string `json:"bin-runtime"`

	// Srcmap is the compressed source map of the creation bytecode.
	Srcmap string `json:"srcmap"`

	// SrcmapRuntime is the compressed source map of the deployed bytecode.
	SrcmapRuntime string `json:"srcmap-runtime"`

	// Userdoc and Devdoc are the documentation documents, verbatim.
	Userdoc json.RawMessage `json:"userdoc,omitempty"`
	Devdoc  json.RawMessage `json:"devdoc,omitempty"`

	// Hashes maps canonical function signatures to their truncated numeric selectors.
	Hashes map[string]uint64 `json:"hashes,omitempty"`

	// Kind and Abstract carry the contract classification when it was resolvable.
	Kind     string `json:"kind,omitempty"`
	Abstract bool   `json:"abstract,omitempty"`

	// Libraries lists the library placeholder tokens present in the bytecode templates.
	Libraries []string `json:"libraries,omitempty"`

	// Dependencies lists the contract names this contract depends on, sorted.
	Dependencies []string `json:"dependencies,omitempty"`
}

// ExportedSourceUnit is the wire form of one source file within a compilation unit.
type ExportedSourceUnit struct {
	// Filename carries all four views of the file identity.
	Filename types.Filename `json:"filename"`

	// ID is the compiler-assigned numeric file identifier, -1 when unknown.
	ID int `json:"id"`

	// IsDependency indicates the file lives under a vendor directory.
	IsDependency bool `json:"is_dependency,omitempty"`

	// Ast is the syntax tree, verbatim.
	Ast json.RawMessage `json:"ast,omitempty"`

	// Contracts maps contract names to their compiled artifacts.
	Contracts map[string]*ExportedContract `json:"contracts"`
}

// ExportedUnit is the wire form of one compilation unit.
type ExportedUnit struct {
	// UnitID repeats the unit's key so unit documents remain self-describing when extracted.
	UnitID string `json:"unit_id"`

	// Compiler describes the compiler and settings the unit was produced with.
	Compiler types.CompilerConfig `json:"compiler"`

	// SourceUnits maps absolute source paths to their per-file output.
	SourceUnits map[string]*ExportedSourceUnit `json:"source_units"`
}

// ExportDocument is the top-level standard export format. The archive format is the same document with
// SourceContent populated.
type ExportDocument struct {
	// Target is the path or address the project was compiled from.
	Target string `json:"target,omitempty"`

	// WorkingDir is the directory compilation was started from.
	WorkingDir string `json:"working_dir"`

	// Type names the platform adapter which produced the project.
	Type string `json:"type"`

	// Package is the npm package name of the target, when one was declared.
	Package string `json:"package,omitempty"`

	// UnitTests lists the test commands guessed by the platform adapter.
	UnitTests []string `json:"unit_tests,omitempty"`

	// CompilationUnits maps unit identifiers to their compiled output.
	CompilationUnits map[string]*ExportedUnit `json:"compilation_units"`

	// SourceContent maps absolute source paths to their source text. Only populated by the archive format.
	SourceContent map[string]string `json:"source_content,omitempty"`
}

// BuildExportDocument converts a project into the standard wire document.
func BuildExportDocument(project *types.Project) *ExportDocument {
	document := &ExportDocument{
		Target:           project.Target,
		WorkingDir:       project.WorkingDirectory,
		Type:             project.Platform,
		Package:          project.Package,
		UnitTests:        project.UnitTests,
		CompilationUnits: make(map[string]*ExportedUnit, len(project.CompilationUnits)),
	}
	for _, unit := range project.SortedUnits() {
		exportedUnit := &ExportedUnit{
			UnitID:      unit.ID,
			Compiler:    unit.Compiler,
			SourceUnits: make(map[string]*ExportedSourceUnit, len(unit.SourceUnits)),
		}
		for _, sourceUnit := range unit.SortedSourceUnits() {
			exportedSource := &ExportedSourceUnit{
				Filename:     *sourceUnit.Filename,
				ID:           sourceUnit.ID,
				IsDependency: sourceUnit.IsDependency,
				Ast:          sourceUnit.Ast,
				Contracts:    make(map[string]*ExportedContract, len(sourceUnit.Contracts)),
			}
			for name, contract := range sourceUnit.Contracts {
				exportedSource.Contracts[name] = exportContract(contract)
			}
			exportedUnit.SourceUnits[sourceUnit.Filename.Absolute] = exportedSource
		}
		document.CompilationUnits[unit.ID] = exportedUnit
	}
	return document
}

// exportContract converts one compiled contract into its wire form.
func exportContract(contract *types.CompiledContract) *ExportedContract {
	return &ExportedContract{
		Abi:           contract.Abi,
		Bin:           types.NormalizeBytecodeString(contract.InitBytecode),
		BinRuntime:    types.NormalizeBytecodeString(contract.RuntimeBytecode),
		Srcmap:        contract.SrcMapsInit,
		SrcmapRuntime: contract.SrcMapsRuntime,
		Userdoc:       contract.Natspec.Userdoc,
		Devdoc:        contract.Natspec.Devdoc,
		Hashes:        contract.FunctionHashes,
		Kind:          string(contract.Kind),
		Abstract:      contract.Abstract,
		Libraries:     contract.Libraries,
		Dependencies:  contract.Dependencies,
	}
}

// ExportStandard writes the project in the standard format under the provided export directory, returning the paths
// written.
func ExportStandard(project *types.Project, exportDirectory string) ([]string, error) {
	document := BuildExportDocument(project)
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(exportDirectory, StandardExportFile)
	if err := utils.WriteFile(path, encoded); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ImportDocument reconstructs a project from a standard or archive export document. Filenames, contracts, bytecodes
// and unit identifiers round-trip unchanged; source text is restored from the document's source content when present.
func ImportDocument(document *ExportDocument) (*types.Project, error) {
	project := types.NewProject(document.Target, document.WorkingDir)
	project.Platform = document.Type
	project.Package = document.Package
	project.UnitTests = document.UnitTests

	units, err := ImportDocumentInto(project, document)
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		project.AddCompilationUnit(unit)
	}
	return project, nil
}

// ImportDocumentInto rehydrates the document's compilation units against an existing project's filename index and
// returns them without installing them, in unit identifier order.
func ImportDocumentInto(project *types.Project, document *ExportDocument) ([]*types.CompilationUnit, error) {
	if document.CompilationUnits == nil {
		return nil, fmt.Errorf("%w: document carries no compilation units", types.ErrInvalidArchive)
	}

	unitIDs := maps.Keys(document.CompilationUnits)
	slices.Sort(unitIDs)
	units := make([]*types.CompilationUnit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		exportedUnit := document.CompilationUnits[unitID]
		unit := types.NewCompilationUnit(unitID, exportedUnit.Compiler)

		paths := maps.Keys(exportedUnit.SourceUnits)
		slices.Sort(paths)
		for _, path := range paths {
			exportedSource := exportedUnit.SourceUnits[path]
			filename := project.InternFilename(exportedSource.Filename)
			sourceUnit := types.NewSourceUnit(filename, exportedSource.Ast)
			sourceUnit.ID = exportedSource.ID
			sourceUnit.IsDependency = exportedSource.IsDependency
			if content, ok := document.SourceContent[filename.Absolute]; ok {
				sourceUnit.Content = content
			}
			for name, exportedContract := range exportedSource.Contracts {
				sourceUnit.AddContract(importContract(name, exportedContract))
			}
			unit.AddSourceUnit(sourceUnit)
		}
		units = append(units, unit)
	}
	return units, nil
}

// importContract converts one wire contract back into the model form.
func importContract(name string, exported *ExportedContract) *types.CompiledContract {
	return &types.CompiledContract{
		Name:            name,
		Abi:             exported.Abi,
		InitBytecode:    types.NormalizeBytecodeString(exported.Bin),
		RuntimeBytecode: types.NormalizeBytecodeString(exported.BinRuntime),
		SrcMapsInit:     exported.Srcmap,
		SrcMapsRuntime:  exported.SrcmapRuntime,
		Natspec:         types.NewNatspec(exported.Userdoc, exported.Devdoc),
		FunctionHashes:  exported.Hashes,
		Kind:            types.ContractKind(exported.Kind),
		Abstract:        exported.Abstract,
		Libraries:       exported.Libraries,
		Dependencies:    exported.Dependencies,
	}
}

// ParseExportDocument decodes a standard or archive export document from raw JSON.
func ParseExportDocument(data []byte) (*ExportDocument, error) {
	var document ExportDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidArchive, err)
	}
	return &document, nil
}
