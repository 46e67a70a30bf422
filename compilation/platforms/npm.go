package platforms

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/crytic/crytic-compile-go/utils"
)

// packageJSON is the subset of a node package manifest the adapters consult for detection and version pinning.
type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// readPackageJSON loads the package.json of a directory. A missing or malformed manifest returns nil, as detection
// treats both the same way.
func readPackageJSON(directory string) *packageJSON {
	data, err := os.ReadFile(filepath.Join(directory, "package.json"))
	if err != nil {
		return nil
	}
	var manifest packageJSON
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	return &manifest
}

// dependencyVersion returns the declared version of a dependency, looking at runtime dependencies first, and a
// boolean indicating whether the dependency was declared at all.
func (p *packageJSON) dependencyVersion(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	if version, ok := p.Dependencies[name]; ok {
		return version, true
	}
	if version, ok := p.DevDependencies[name]; ok {
		return version, true
	}
	return "", false
}

// hasDependency reports whether the manifest declares the dependency anywhere.
func (p *packageJSON) hasDependency(name string) bool {
	_, ok := p.dependencyVersion(name)
	return ok
}

// nodeCommand builds an invocation of a node-based tool, going through npx unless the caller disabled it in
// favor of a globally installed binary. Windows installs expose npx through a .cmd shim.
func nodeCommand(npxDisable bool, tool string, args ...string) *exec.Cmd {
	if npxDisable {
		return exec.Command(tool, args...)
	}
	npx := "npx"
	if utils.IsWindowsEnvironment() {
		npx = "npx.cmd"
	}
	return exec.Command(npx, append([]string{tool}, args...)...)
}

// GetPackageName returns the npm package name declared by a directory target, or an empty string when the target is
// not a directory or declares none.
func GetPackageName(target string) string {
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return ""
	}
	manifest := readPackageJSON(target)
	if manifest == nil {
		return ""
	}
	return manifest.Name
}
