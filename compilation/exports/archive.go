package exports

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// ArchiveExportSuffix is the filename suffix of archive export artifacts, and what archive detection keys on.
const ArchiveExportSuffix = "_export_archive.json"

// BuildArchiveDocument converts a project into the archive wire document: the standard document with the source text
// of every participating file embedded, so the archive can be re-imported on a machine without the sources.
func BuildArchiveDocument(project *types.Project) *ExportDocument {
	document := BuildExportDocument(project)
	document.SourceContent = collectSourceContent(project)
	return document
}

// collectSourceContent gathers the source text of every file in the project, preferring text the producing platform
// already captured and falling back to the file on disk. Files which cannot be read are omitted.
func collectSourceContent(project *types.Project) map[string]string {
	content := make(map[string]string)
	for _, unit := range project.SortedUnits() {
		for _, sourceUnit := range unit.SortedSourceUnits() {
			absolute := sourceUnit.Filename.Absolute
			if _, seen := content[absolute]; seen {
				continue
			}
			if sourceUnit.Content != "" {
				content[absolute] = sourceUnit.Content
				continue
			}
			data, err := os.ReadFile(absolute)
			if err != nil {
				continue
			}
			content[absolute] = string(data)
		}
	}
	return content
}

// ArchiveFileName derives the archive artifact name for a target, e.g. token_project_export_archive.json.
func ArchiveFileName(target string) string {
	base := filepath.Base(strings.TrimRight(target, string(filepath.Separator)))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "project"
	}
	// Verification targets look like chain:address and would not survive as a filename component.
	base = strings.ReplaceAll(base, ":", "_")
	return base + ArchiveExportSuffix
}

// GenerateArchive renders the archive document of a project, returning the artifact name and its JSON encoding.
func GenerateArchive(project *types.Project) (string, []byte, error) {
	document := BuildArchiveDocument(project)
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return ArchiveFileName(project.Target), encoded, nil
}

// ExportArchive writes the project as a self-contained archive under the provided export directory, returning the
// paths written.
func ExportArchive(project *types.Project, exportDirectory string) ([]string, error) {
	name, encoded, err := GenerateArchive(project)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(exportDirectory, name)
	if err := utils.WriteFile(path, encoded); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ImportArchive reconstructs a project from archive JSON, restoring source text from the embedded content.
func ImportArchive(data []byte) (*types.Project, error) {
	document, err := ParseExportDocument(data)
	if err != nil {
		return nil, err
	}
	return ImportDocument(document)
}
