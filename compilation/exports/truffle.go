package exports

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// truffleExportArtifact is the subset of a truffle build artifact downstream tooling consumes: one file per
// contract, bytecodes 0x-prefixed.
type truffleExportArtifact struct {
	ContractName     string          `json:"contractName"`
	Abi              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Ast              json.RawMessage `json:"ast"`
	Userdoc          json.RawMessage `json:"userdoc"`
	Devdoc           json.RawMessage `json:"devdoc"`
}

// ExportTruffle writes the project as truffle-style per-contract artifacts under the provided export directory,
// returning the paths written. The format has no place for several compiler configurations, so only single-unit
// projects qualify.
func ExportTruffle(project *types.Project, exportDirectory string) ([]string, error) {
	units := project.SortedUnits()
	if len(units) != 1 {
		return nil, fmt.Errorf("the truffle export requires a single compilation unit, the project has %d", len(units))
	}
	unit := units[0]

	var paths []string
	for _, sourceUnit := range unit.SortedSourceUnits() {
		for _, name := range sourceUnit.ContractNames() {
			contract := sourceUnit.Contracts[name]
			artifact := &truffleExportArtifact{
				ContractName:     name,
				Abi:              documentOr(contract.Abi, "[]"),
				Bytecode:         "0x" + types.NormalizeBytecodeString(contract.InitBytecode),
				DeployedBytecode: "0x" + types.NormalizeBytecodeString(contract.RuntimeBytecode),
				Ast:              documentOr(sourceUnit.Ast, "{}"),
				Userdoc:          documentOr(contract.Natspec.Userdoc, "{}"),
				Devdoc:           documentOr(contract.Natspec.Devdoc, "{}"),
			}
			encoded, err := json.MarshalIndent(artifact, "", "  ")
			if err != nil {
				return nil, err
			}

			path := filepath.Join(exportDirectory, name+".json")
			if err := utils.WriteFile(path, encoded); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}
