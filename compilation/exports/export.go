package exports

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/crytic/crytic-compile-go/compilation/types"
)

// ExportFunc writes a project in one format under an export directory and returns the paths written.
type ExportFunc func(project *types.Project, exportDirectory string) ([]string, error)

// exportFormats maps the format names accepted on the command line to their writers. "crytic-compile" is the
// historical alias of the standard format.
var exportFormats = map[string]ExportFunc{
	"standard":       ExportStandard,
	"crytic-compile": ExportStandard,
	"solc":           ExportSolc,
	"truffle":        ExportTruffle,
	"archive":        ExportArchive,
}

// SupportedFormats returns the accepted export format names, sorted.
func SupportedFormats() []string {
	names := maps.Keys(exportFormats)
	slices.Sort(names)
	return names
}

// Export writes a project in the named format under the provided export directory, returning the paths written.
func Export(project *types.Project, format string, exportDirectory string) ([]string, error) {
	writer, ok := exportFormats[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported export format '%s', expected one of: %s",
			format, strings.Join(SupportedFormats(), ", "))
	}
	return writer(project, exportDirectory)
}
