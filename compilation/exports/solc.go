package exports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// SolcExportFile is the artifact name the combined-json export writes for a single-unit project. Multi-unit
// projects append the unit identifier before the extension.
const SolcExportFile = "combined_solc.json"

// solcExportSource is the per-file entry of the combined-json document.
type solcExportSource struct {
	AST json.RawMessage `json:"AST"`
}

// solcExportContract is the per-contract entry of the combined-json document. The ABI is a JSON document rendered
// into a string, the way solc's own combined output carried it.
type solcExportContract struct {
	Srcmap        string          `json:"srcmap"`
	SrcmapRuntime string          `json:"srcmap-runtime"`
	Abi           string          `json:"abi"`
	Bin           string          `json:"bin"`
	BinRuntime    string          `json:"bin-runtime"`
	Userdoc       json.RawMessage `json:"userdoc"`
	Devdoc        json.RawMessage `json:"devdoc"`
}

// solcExportDocument mirrors the combined-json output of solc: per-file syntax trees, the file ordering source maps
// index into, and the per-contract artifacts keyed path:name.
type solcExportDocument struct {
	Sources    map[string]solcExportSource    `json:"sources"`
	SourceList []string                       `json:"sourceList"`
	Contracts  map[string]*solcExportContract `json:"contracts"`
}

// buildSolcDocument renders one compilation unit as a combined-json document. Bytecodes are linked against the
// project's library addresses; placeholders without an address stay in the templates.
func buildSolcDocument(project *types.Project, unit *types.CompilationUnit) (*solcExportDocument, error) {
	document := &solcExportDocument{
		Sources:    make(map[string]solcExportSource, len(unit.SourceUnits)),
		SourceList: solcSourceList(unit),
		Contracts:  make(map[string]*solcExportContract),
	}

	for _, sourceUnit := range unit.SortedSourceUnits() {
		document.Sources[sourceUnit.Filename.Absolute] = solcExportSource{AST: sourceUnit.Ast}
		for _, name := range sourceUnit.ContractNames() {
			contract := sourceUnit.Contracts[name]

			bin, err := unit.LinkedInitBytecode(name, project.Libraries)
			if err != nil {
				return nil, err
			}
			binRuntime, err := unit.LinkedRuntimeBytecode(name, project.Libraries)
			if err != nil {
				return nil, err
			}

			document.Contracts[sourceUnit.Filename.Absolute+":"+name] = &solcExportContract{
				Srcmap:        contract.SrcMapsInit,
				SrcmapRuntime: contract.SrcMapsRuntime,
				Abi:           compactJSONString(contract.Abi, "[]"),
				Bin:           types.NormalizeBytecodeString(bin),
				BinRuntime:    types.NormalizeBytecodeString(binRuntime),
				Userdoc:       documentOr(contract.Natspec.Userdoc, "{}"),
				Devdoc:        documentOr(contract.Natspec.Devdoc, "{}"),
			}
		}
	}
	return document, nil
}

// solcSourceList orders the unit's files the way downstream tooling indexes them: emit order, with the imported
// package paths (the ones carrying an @) partitioned to the front.
func solcSourceList(unit *types.CompilationUnit) []string {
	var packaged, plain []string
	for _, sourceUnit := range unit.SourceUnitList() {
		if strings.Contains(sourceUnit.Filename.Absolute, "@") {
			packaged = append(packaged, sourceUnit.Filename.Absolute)
		} else {
			plain = append(plain, sourceUnit.Filename.Absolute)
		}
	}
	return append(packaged, plain...)
}

// compactJSONString renders a raw JSON document as a compact string, substituting a fallback for absent documents.
func compactJSONString(document json.RawMessage, fallback string) string {
	text := strings.TrimSpace(string(document))
	if text == "" || text == "null" {
		return fallback
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, document); err != nil {
		return text
	}
	return compacted.String()
}

// documentOr substitutes a fallback for an absent JSON document, keeping the export keys present.
func documentOr(document json.RawMessage, fallback string) json.RawMessage {
	text := strings.TrimSpace(string(document))
	if text == "" || text == "null" {
		return json.RawMessage(fallback)
	}
	return document
}

// solcExportFileName names the artifact of one unit. Single-unit projects keep the plain name.
func solcExportFileName(unitID string, multiUnit bool) string {
	if !multiUnit {
		return SolcExportFile
	}
	safeID := strings.ReplaceAll(unitID, ":", "_")
	return strings.TrimSuffix(SolcExportFile, ".json") + "_" + safeID + ".json"
}

// ExportSolc writes the project in solc's combined-json shape under the provided export directory, one document per
// compilation unit, returning the paths written.
func ExportSolc(project *types.Project, exportDirectory string) ([]string, error) {
	units := project.SortedUnits()
	multiUnit := len(units) > 1

	var paths []string
	for _, unit := range units {
		document, err := buildSolcDocument(project, unit)
		if err != nil {
			return nil, err
		}
		encoded, err := json.MarshalIndent(document, "", "  ")
		if err != nil {
			return nil, err
		}

		path := filepath.Join(exportDirectory, solcExportFileName(unit.ID, multiUnit))
		if err := utils.WriteFile(path, encoded); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("the project has no compilation units to export")
	}
	return paths, nil
}
