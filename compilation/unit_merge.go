package compilation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/crytic/crytic-compile-go/compilation/types"
)

// MergeUnits folds compilation units produced with identical compiler settings into one unit each, preserving the
// order groups first appear in. Source files shared between units merge into a single source unit; the same
// contract name appearing twice with differing ABIs is fatal, as the merged unit could no longer answer which
// definition a name refers to.
func MergeUnits(units []*types.CompilationUnit) ([]*types.CompilationUnit, error) {
	grouped := make(map[string]*types.CompilationUnit)
	var order []string
	for _, unit := range units {
		fingerprint := compilerFingerprint(unit.Compiler)
		existing, ok := grouped[fingerprint]
		if !ok {
			grouped[fingerprint] = unit
			order = append(order, fingerprint)
			continue
		}
		if err := mergeInto(existing, unit); err != nil {
			return nil, err
		}
	}

	merged := make([]*types.CompilationUnit, 0, len(order))
	for _, fingerprint := range order {
		merged = append(merged, grouped[fingerprint])
	}
	return merged, nil
}

// compilerFingerprint renders the compiler settings of a unit in a canonical comparable form, so units which only
// differ in identifier fold together.
func compilerFingerprint(compiler types.CompilerConfig) string {
	remappings := slices.Clone(compiler.Remappings)
	slices.Sort(remappings)
	includePaths := slices.Clone(compiler.IncludePaths)
	slices.Sort(includePaths)
	return fmt.Sprintf("%s|%s|%t|%d|%s|%t|%s|%s",
		compiler.Compiler, compiler.Version, compiler.Optimized, compiler.OptimizeRuns, compiler.EVMVersion,
		compiler.ViaIR, strings.Join(remappings, ","), strings.Join(includePaths, ","))
}

// mergeInto folds the source units of src into dst. Shared files keep dst's artifacts, with missing pieces filled
// in from src.
func mergeInto(dst *types.CompilationUnit, src *types.CompilationUnit) error {
	for _, sourceUnit := range src.SourceUnitList() {
		existing := dst.AddSourceUnit(sourceUnit)
		if existing == sourceUnit {
			continue
		}

		// The file was already present; complete it with whatever this unit has that the first one lacked.
		if len(existing.Ast) == 0 {
			existing.Ast = sourceUnit.Ast
		}
		if existing.ID == -1 {
			existing.ID = sourceUnit.ID
		}
		if existing.Content == "" {
			existing.Content = sourceUnit.Content
		}
		existing.IsDependency = existing.IsDependency && sourceUnit.IsDependency

		for name, contract := range sourceUnit.Contracts {
			existingContract, present := existing.Contracts[name]
			if !present {
				existing.AddContract(contract)
				continue
			}
			if !abiEquivalent(existingContract.Abi, contract.Abi) {
				return fmt.Errorf("%w: contract '%s' in %s was compiled with conflicting definitions",
					types.ErrContractAmbiguous, name, existing.Filename.Used)
			}
		}
	}
	return nil
}

// abiEquivalent compares two ABI documents structurally, ignoring whitespace. Documents which do not parse only
// compare equal to themselves byte for byte.
func abiEquivalent(a json.RawMessage, b json.RawMessage) bool {
	normalizedA, okA := normalizeABI(a)
	normalizedB, okB := normalizeABI(b)
	if !okA || !okB {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(normalizedA, normalizedB)
}

// normalizeABI re-encodes an ABI document into a canonical byte form. Absent documents normalize to the empty list.
func normalizeABI(document json.RawMessage) ([]byte, bool) {
	text := strings.TrimSpace(string(document))
	if text == "" || text == "null" {
		return []byte("[]"), true
	}
	var decoded any
	if err := json.Unmarshal(document, &decoded); err != nil {
		return nil, false
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, false
	}
	return encoded, true
}
