package platforms

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/crytic/crytic-compile-go/compilation/types"
)

// versionPattern extracts a dotted version from tool output such as "Version: 0.8.17+commit.8df45f5f".
var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// pragmaPattern extracts the concrete version mentioned by a solidity pragma. Range operators are dropped since the
// named version is the most useful pin.
var pragmaPattern = regexp.MustCompile(`pragma solidity\s*(?:\^|>=|<=)?\s*(\d+\.\d+\.\d+)`)

// SolcBinary describes the solc executable selected for a run: the path to invoke, the environment it must run
// under (nil inherits the process environment), and the version it reports.
type SolcBinary struct {
	// Path is the executable to invoke.
	Path string

	// Env is the environment for the invocation. A version manager pin is carried here.
	Env []string

	// Version is the version the executable reported.
	Version *semver.Version
}

// GetSolcVersion runs an executable with --version and parses the reported version out of its output.
func GetSolcVersion(solcPath string, env []string) (*semver.Version, error) {
	cmd := exec.Command(solcPath, "--version")
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrCompilerNotFound, solcPath)
		}
		return nil, fmt.Errorf("error while executing %s:\nOUTPUT:\n%s\nERROR: %s\n", solcPath, string(out), err.Error())
	}

	// Parse the compiler version out of the output
	versionStr := versionPattern.FindString(string(out))
	if versionStr == "" {
		return nil, fmt.Errorf("%w: could not parse version using '%s --version'", types.ErrCompilerNotFound, solcPath)
	}

	// Parse our semver string and return it
	return semver.NewVersion(versionStr)
}

// GetSystemSolcVersion returns the version reported by the solc found on PATH.
func GetSystemSolcVersion() (*semver.Version, error) {
	return GetSolcVersion("solc", nil)
}

// GuessSolcVersion scans the target for a solidity pragma and returns the concrete version it names, or an empty
// string when no pragma is found. Directory targets are scanned one level deep, in name order, until a pragma turns
// up.
func GuessSolcVersion(target string) string {
	info, err := os.Stat(target)
	if err != nil {
		return ""
	}

	// Collect the candidate files to scan.
	var candidates []string
	if info.IsDir() {
		matches, err := filepath.Glob(filepath.Join(target, "*.sol"))
		if err != nil {
			return ""
		}
		sort.Strings(matches)
		candidates = matches
	} else if strings.HasSuffix(target, ".sol") {
		candidates = []string{target}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		if match := pragmaPattern.FindSubmatch(data); match != nil {
			return string(match[1])
		}
	}
	return ""
}

// LocateSolc resolves which solc executable a run should use. An explicit path wins; a pinned version routes
// through the version manager by environment; otherwise the target's pragma picks a version when the version
// manager is installed; the solc found on PATH is the last resort.
func LocateSolc(solcPath string, solcVersion string, target string) (*SolcBinary, error) {
	// An explicit binary path is taken as-is.
	if solcPath != "" {
		version, err := GetSolcVersion(solcPath, nil)
		if err != nil {
			return nil, err
		}
		return &SolcBinary{Path: solcPath, Version: version}, nil
	}

	// A pinned version is carried through the environment, which the version manager shim honors. A pin the
	// caller asked for must resolve; a pin guessed from the pragma may fall back to the system compiler.
	if solcVersion != "" {
		env := append(os.Environ(), "SOLC_VERSION="+solcVersion)
		version, err := GetSolcVersion("solc", env)
		if err != nil {
			return nil, err
		}
		return &SolcBinary{Path: "solc", Env: env, Version: version}, nil
	}

	if guessed := GuessSolcVersion(target); guessed != "" {
		if _, err := exec.LookPath("solc-select"); err == nil {
			env := append(os.Environ(), "SOLC_VERSION="+guessed)
			if version, err := GetSolcVersion("solc", env); err == nil {
				return &SolcBinary{Path: "solc", Env: env, Version: version}, nil
			}
		}
	}

	version, err := GetSystemSolcVersion()
	if err != nil {
		return nil, err
	}
	return &SolcBinary{Path: "solc", Version: version}, nil
}

// SolcOutputOptions determines what combined-json output options can be requested from a given solc version.
func SolcOutputOptions(v *semver.Version) string {
	// useCompactFormat will add the compact-format output option
	// if version is 0.4.12-0.4.26 or 0.5.0-0.5.17 or 0.6.0-0.6.12 or 0.7.0-0.7.6 or 0.8.0-0.8.9
	useCompactFormat := (v.Major() == 0 && v.Minor() == 4 && v.Patch() >= 12 && v.Patch() <= 26) ||
		(v.Major() == 0 && v.Minor() == 5 && v.Patch() <= 17) ||
		(v.Major() == 0 && v.Minor() == 6 && v.Patch() <= 12) ||
		(v.Major() == 0 && v.Minor() == 7 && v.Patch() <= 6) ||
		(v.Major() == 0 && v.Minor() == 8 && v.Patch() <= 9)

	// if version is 0.3.0-0.3.6 or 0.4.0-0.4.11 no 'hashes' outputOption
	if (v.Major() == 0 && v.Minor() == 4 && v.Patch() <= 11) || (v.Major() == 0 && v.Minor() == 3 && v.Patch() <= 6) {
		return "abi,ast,bin,bin-runtime,srcmap,srcmap-runtime,userdoc,devdoc"
	} else if useCompactFormat {
		// Both 'hashes' and 'compact-format' are allowed as outputOptions
		return "abi,ast,bin,bin-runtime,srcmap,srcmap-runtime,userdoc,devdoc,hashes,compact-format"
	} else {
		// Can't use 'compact-format' but 'hashes' is allowed as outputOption
		return "abi,ast,bin,bin-runtime,srcmap,srcmap-runtime,userdoc,devdoc,hashes"
	}
}

// solcSupportsAllowPaths reports whether the version understands --allow-paths, introduced with 0.4.11.
func solcSupportsAllowPaths(v *semver.Version) bool {
	if v.Major() > 0 {
		return true
	}
	if v.Minor() > 4 {
		return true
	}
	return v.Minor() == 4 && v.Patch() >= 11
}

// classifyToolError maps a subprocess failure onto the error taxonomy: a missing executable, a compiler reporting
// source errors through its conventional exit code 1, or a compiler crash. The captured output rides along.
func classifyToolError(tool string, err error, combined []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", types.ErrCompilerNotFound, tool)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return fmt.Errorf("%w: error while executing %s:\nOUTPUT:\n%s\nERROR: %s\n",
			types.ErrCompilationFailed, tool, string(combined), err.Error())
	}
	return fmt.Errorf("%w: error while executing %s:\nOUTPUT:\n%s\nERROR: %s\n",
		types.ErrCompilerCrashed, tool, string(combined), err.Error())
}
