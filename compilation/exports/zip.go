package exports

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// zipMethods maps the configurable compression names to the methods the zip format offers.
var zipMethods = map[string]uint16{
	"stored":   zip.Store,
	"deflated": zip.Deflate,
}

// DefaultZipMethod is the compression used when none is configured.
const DefaultZipMethod = "deflated"

// zipMethod resolves a compression name, case-insensitively.
func zipMethod(name string) (uint16, error) {
	if name == "" {
		name = DefaultZipMethod
	}
	method, ok := zipMethods[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unsupported zip compression '%s', expected stored or deflated", name)
	}
	return method, nil
}

// ExportZip packs the archive document of every project into one zip file, one member per project. The member name
// derives from the project target; clashing targets get a numeric suffix so no project is silently dropped.
func ExportZip(projects []*types.Project, zipPath string, compression string) error {
	method, err := zipMethod(compression)
	if err != nil {
		return err
	}

	file, err := utils.CreateFile("", zipPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := zip.NewWriter(file)
	taken := make(map[string]struct{})
	for _, project := range projects {
		name, encoded, err := GenerateArchive(project)
		if err != nil {
			return err
		}
		name = uniqueMemberName(taken, name)

		member, err := writer.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return err
		}
		if _, err := member.Write(encoded); err != nil {
			return err
		}
	}
	return writer.Close()
}

// uniqueMemberName reserves a member name, suffixing it when a previous project already claimed it.
func uniqueMemberName(taken map[string]struct{}, name string) string {
	candidate := name
	for i := 2; ; i++ {
		if _, clash := taken[candidate]; !clash {
			taken[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", name, i)
	}
}

// ImportZip reads every export document embedded in a zip file, in member order. A path ending in .zip.base64 is
// decoded into a temporary file first, as some transports only carry text.
func ImportZip(path string) ([]*ExportDocument, error) {
	if strings.HasSuffix(path, ".zip.base64") {
		decodedPath, cleanup, err := decodeBase64Zip(path)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = decodedPath
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %s: %v", types.ErrInvalidArchive, path, err)
	}
	defer reader.Close()

	documents := make([]*ExportDocument, 0, len(reader.File))
	for _, member := range reader.File {
		handle, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: could not open member %s: %v", types.ErrInvalidArchive, member.Name, err)
		}
		data, err := io.ReadAll(handle)
		handle.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: could not read member %s: %v", types.ErrInvalidArchive, member.Name, err)
		}

		document, err := ParseExportDocument(data)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", member.Name, err)
		}
		documents = append(documents, document)
	}
	return documents, nil
}

// decodeBase64Zip decodes a base64-wrapped zip into a temporary file, returning its path and a cleanup function.
func decodeBase64Zip(path string) (string, func(), error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: could not read %s: %v", types.ErrInvalidArchive, path, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s is not valid base64: %v", types.ErrInvalidArchive, path, err)
	}

	temp, err := os.CreateTemp("", "crytic-import-*.zip")
	if err != nil {
		return "", nil, err
	}
	if _, err := temp.Write(decoded); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return "", nil, err
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return "", nil, err
	}
	return temp.Name(), func() { os.Remove(temp.Name()) }, nil
}
