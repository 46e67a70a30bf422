package platforms

import (
	"fmt"
	"os"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/exports"
	"github.com/crytic/crytic-compile-go/compilation/types"
)

// ArchiveCompilationConfig represents the import adapter for previously exported projects: the standard format, the
// archive format with embedded sources, and zip bundles of archives. Importing rehydrates units without running any
// compiler.
type ArchiveCompilationConfig struct {
	// Target is the export document or zip bundle to load.
	Target string `json:"target"`

	// documents caches the parsed exports so detection-time metadata survives into GuessedTests.
	documents []*exports.ExportDocument
}

// NewArchiveCompilationConfig returns an archive adapter config for the provided export document.
func NewArchiveCompilationConfig(target string) *ArchiveCompilationConfig {
	return &ArchiveCompilationConfig{Target: target}
}

// NewArchiveCompilationConfigWithOptions returns an archive adapter config honoring the shared platform options.
func NewArchiveCompilationConfigWithOptions(target string, _ *PlatformOptions) *ArchiveCompilationConfig {
	return NewArchiveCompilationConfig(target)
}

// Platform returns the platform identifier for the configuration.
func (a *ArchiveCompilationConfig) Platform() string {
	return "archive"
}

// Priority returns the detection priority for the configuration.
func (a *ArchiveCompilationConfig) Priority() int {
	return PriorityArchive
}

// GetTarget returns the target for compilation.
func (a *ArchiveCompilationConfig) GetTarget() string {
	return a.Target
}

// SetTarget sets the new target for compilation.
func (a *ArchiveCompilationConfig) SetTarget(newTarget string) {
	a.Target = newTarget
	a.documents = nil
}

// IsSupported reports whether the target is an export document or a zip bundle, recognized by the conventional
// name suffixes.
func (a *ArchiveCompilationConfig) IsSupported(target string) bool {
	return strings.HasSuffix(target, "_export_archive.json") || strings.HasSuffix(target, "_export.json") ||
		strings.HasSuffix(target, ".zip") || strings.HasSuffix(target, ".zip.base64")
}

// IsDependency reports whether the path is a vendored dependency. The document records this per source unit
// instead, so nothing qualifies here.
func (a *ArchiveCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands recorded in the imported documents.
func (a *ArchiveCompilationConfig) GuessedTests() []string {
	var tests []string
	seen := make(map[string]struct{})
	for _, document := range a.documents {
		for _, test := range document.UnitTests {
			if _, duplicate := seen[test]; duplicate {
				continue
			}
			seen[test] = struct{}{}
			tests = append(tests, test)
		}
	}
	return tests
}

// Clean removes build artifacts. Imports have none.
func (a *ArchiveCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// Compile loads the export documents and rehydrates their compilation units into the project. A zip bundle
// contributes the units of every embedded document.
func (a *ArchiveCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	documents, err := a.loadDocuments()
	if err != nil {
		return nil, "", err
	}
	a.documents = documents

	var units []*types.CompilationUnit
	for _, document := range documents {
		imported, err := exports.ImportDocumentInto(project, document)
		if err != nil {
			return nil, "", err
		}
		units = append(units, imported...)
		// The document speaks for the project it captured.
		if project.Package == "" {
			project.Package = document.Package
		}
	}
	return units, "", nil
}

// loadDocuments parses the target into its export documents, whichever container carries them.
func (a *ArchiveCompilationConfig) loadDocuments() ([]*exports.ExportDocument, error) {
	if strings.HasSuffix(a.Target, ".zip") || strings.HasSuffix(a.Target, ".zip.base64") {
		return exports.ImportZip(a.Target)
	}

	encoded, err := os.ReadFile(a.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read %s: %v", types.ErrInvalidArchive, a.Target, err)
	}
	document, err := exports.ParseExportDocument(encoded)
	if err != nil {
		return nil, err
	}
	return []*exports.ExportDocument{document}, nil
}
