package types

import (
	"encoding/json"
	"fmt"
)

// NatspecContractKey is the sentinel key under which contract-level documentation is folded, since it has no
// function selector of its own.
const NatspecContractKey = "#contract"

// Natspec carries the two documentation documents the compiler emits per contract: the user-facing one and the
// developer-facing one. Both are kept verbatim for export fidelity; Fold produces the merged, selector-indexed view.
type Natspec struct {
	// Userdoc is the user-facing documentation JSON as emitted by the compiler.
	Userdoc json.RawMessage `json:"userdoc"`

	// Devdoc is the developer-facing documentation JSON as emitted by the compiler.
	Devdoc json.RawMessage `json:"devdoc"`
}

// NewNatspec builds a Natspec from raw compiler output, normalizing absent documents to empty JSON objects.
func NewNatspec(userdoc, devdoc json.RawMessage) Natspec {
	if len(userdoc) == 0 {
		userdoc = json.RawMessage("{}")
	}
	if len(devdoc) == 0 {
		devdoc = json.RawMessage("{}")
	}
	return Natspec{Userdoc: userdoc, Devdoc: devdoc}
}

// MethodDoc is the merged documentation of a single function, combining the user notice with the developer details.
// Fields the compiler did not emit stay empty; unknown developer keys are retained verbatim in Extra.
type MethodDoc struct {
	// Notice is the user-facing message for the function.
	Notice string `json:"notice,omitempty"`

	// Details holds the developer-facing description.
	Details string `json:"details,omitempty"`

	// Params maps parameter names to their descriptions.
	Params map[string]string `json:"params,omitempty"`

	// Returns maps return value names to their descriptions.
	Returns map[string]string `json:"returns,omitempty"`

	// Extra retains developer documentation keys this model does not recognize.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// ContractDoc is the merged contract-level documentation: title, author, and the free-standing notice and details.
type ContractDoc struct {
	Title   string                     `json:"title,omitempty"`
	Author  string                     `json:"author,omitempty"`
	Notice  string                     `json:"notice,omitempty"`
	Details string                     `json:"details,omitempty"`
	Extra   map[string]json.RawMessage `json:"extra,omitempty"`
}

// natspecDocument mirrors the common structure of both compiler documentation documents. Methods are keyed by
// function signature; the remaining keys are contract-level.
type natspecDocument struct {
	Version int                                   `json:"version"`
	Kind    string                                `json:"kind"`
	Title   string                                `json:"title"`
	Author  string                                `json:"author"`
	Notice  string                                `json:"notice"`
	Details string                                `json:"details"`
	Methods map[string]map[string]json.RawMessage `json:"methods"`
}

// Fold merges the user and developer documents into one record indexed by 4-byte function selector hex. Signatures
// that cannot be resolved to a selector keep their signature as the key; contract-level documentation goes under
// NatspecContractKey. Returns the merged mapping, with method docs stored as *MethodDoc and the contract entry as
// *ContractDoc.
func (n Natspec) Fold() (map[string]any, error) {
	var userdoc, devdoc natspecDocument
	if err := json.Unmarshal(n.Userdoc, &userdoc); err != nil {
		return nil, fmt.Errorf("could not parse userdoc: %v", err)
	}
	if err := json.Unmarshal(n.Devdoc, &devdoc); err != nil {
		return nil, fmt.Errorf("could not parse devdoc: %v", err)
	}

	folded := make(map[string]any)

	// Merge per-method entries from both documents, keyed by selector when the signature resolves.
	signatures := make(map[string]struct{})
	for signature := range userdoc.Methods {
		signatures[signature] = struct{}{}
	}
	for signature := range devdoc.Methods {
		signatures[signature] = struct{}{}
	}
	for signature := range signatures {
		method := &MethodDoc{}
		if fields, ok := userdoc.Methods[signature]; ok {
			if raw, ok := fields["notice"]; ok {
				_ = json.Unmarshal(raw, &method.Notice)
			}
		}
		if fields, ok := devdoc.Methods[signature]; ok {
			for key, raw := range fields {
				switch key {
				case "details":
					_ = json.Unmarshal(raw, &method.Details)
				case "params":
					_ = json.Unmarshal(raw, &method.Params)
				case "returns":
					_ = json.Unmarshal(raw, &method.Returns)
				default:
					if method.Extra == nil {
						method.Extra = make(map[string]json.RawMessage)
					}
					method.Extra[key] = raw
				}
			}
		}

		key := signature
		if selector, ok := SelectorHex(signature); ok {
			key = selector
		}
		folded[key] = method
	}

	// Contract-level documentation has no selector; it folds under the sentinel key.
	contract := &ContractDoc{
		Title:   devdoc.Title,
		Author:  devdoc.Author,
		Notice:  userdoc.Notice,
		Details: devdoc.Details,
	}
	if contract.Title != "" || contract.Author != "" || contract.Notice != "" || contract.Details != "" {
		folded[NatspecContractKey] = contract
	}

	return folded, nil
}
