package types

import (
	"os"
	"path/filepath"
	"strings"
)

// Filename describes a single source file identity as four coexisting views of the same path. Equality is defined on
// Absolute alone; the remaining fields are display facets kept for exports and log output.
type Filename struct {
	// Absolute describes the canonicalized OS path of the file, with symlinks resolved when the file exists on disk.
	Absolute string `json:"absolute"`

	// Relative describes Absolute expressed relative to the project working directory, when Absolute is a descendant
	// of it. Otherwise it equals Absolute.
	Relative string `json:"relative"`

	// Short describes a display form of the path with commonly-seen prefixes (vendor directories, the working
	// directory, the user home) stripped.
	Short string `json:"short"`

	// Used describes the exact path string the compiler saw, kept verbatim. It may be a remapped import path.
	Used string `json:"used"`
}

// IsEmpty returns a boolean indicating whether this identity carries no path at all.
func (f Filename) IsEmpty() bool {
	return f.Absolute == ""
}

// String returns the canonical view of the identity.
func (f Filename) String() string {
	return f.Absolute
}

// Remapping describes a single import remapping of the form prefix=target, as understood by solc.
type Remapping struct {
	// Prefix is the import prefix being substituted.
	Prefix string
	// Target is the path the prefix maps to.
	Target string
}

// ParseRemappings splits a list of prefix=target strings into Remapping values. Entries without an equal sign are
// ignored, matching how solc treats malformed remappings.
func ParseRemappings(raw []string) []Remapping {
	remappings := make([]Remapping, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		remappings = append(remappings, Remapping{Prefix: parts[0], Target: parts[1]})
	}
	return remappings
}

// PathContext carries the hints needed to resolve raw path strings into Filename identities: the working directory the
// project was compiled from, compiler include paths and remappings, the vendor directories of the active platform,
// and an optional platform-specific shortener applied to the Short facet.
type PathContext struct {
	// WorkingDirectory is the directory compilation was started from. Resolution and the Relative facet are anchored
	// to it.
	WorkingDirectory string

	// IncludePaths lists additional directories probed when a raw path does not exist as given.
	IncludePaths []string

	// Remappings lists import remappings probed when a raw path does not exist as given.
	Remappings []Remapping

	// VendorDirectories lists directory names treated as dependency roots when computing the Short facet. When nil,
	// DefaultVendorDirectories is used.
	VendorDirectories []string

	// Shortener is an optional platform-specific transformation applied last to the Short facet, e.g. stripping a
	// leading contracts/ component.
	Shortener func(short string) string
}

// DefaultVendorDirectories lists the dependency roots stripped from the Short facet when the platform does not
// declare its own.
var DefaultVendorDirectories = []string{"node_modules"}

// Resolve converts a raw path string into a Filename identity following the normalization rules. The Used facet keeps
// the input verbatim; the Absolute facet is found by probing the working directory, include paths, and remappings in
// that order, falling back to a syntactic join with the working directory when nothing exists on disk.
func (ctx *PathContext) Resolve(used string) Filename {
	workingDirectory := ctx.workingDirectory()

	// Expand user home and environment variables before any filesystem probing.
	expanded := expandPath(used)

	// An existing absolute path is taken as-is. Otherwise probe each candidate location and keep the first which
	// exists on disk. When nothing exists, the identity is still constructed from the syntactic join so artifact
	// parsing does not depend on sources remaining in place.
	var absolute string
	if filepath.IsAbs(expanded) {
		absolute = canonicalPath(expanded)
	} else {
		candidates := make([]string, 0, 2+len(ctx.IncludePaths)+len(ctx.Remappings))
		candidates = append(candidates, filepath.Join(workingDirectory, expanded))
		for _, includePath := range ctx.IncludePaths {
			candidates = append(candidates, filepath.Join(includePath, expanded))
		}
		for _, remapping := range ctx.Remappings {
			if strings.HasPrefix(expanded, remapping.Prefix) {
				remapped := remapping.Target + strings.TrimPrefix(expanded, remapping.Prefix)
				if !filepath.IsAbs(remapped) {
					remapped = filepath.Join(workingDirectory, remapped)
				}
				candidates = append(candidates, remapped)
			}
		}

		absolute = filepath.Clean(candidates[0])
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				absolute = canonicalPath(candidate)
				break
			}
		}
	}

	// The Relative facet only applies when the file lives under the working directory.
	relative := absolute
	if rel, err := filepath.Rel(workingDirectory, absolute); err == nil && !strings.HasPrefix(rel, "..") {
		relative = rel
	}

	short := ctx.shorten(relative)

	return Filename{
		Absolute: absolute,
		Relative: filepath.ToSlash(relative),
		Short:    filepath.ToSlash(short),
		Used:     used,
	}
}

// workingDirectory returns the context working directory, defaulting to the process working directory.
func (ctx *PathContext) workingDirectory() string {
	if ctx.WorkingDirectory != "" {
		return canonicalPath(ctx.WorkingDirectory)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// shorten derives the Short facet from the Relative one: the path after the first vendor directory component wins,
// then a leading user home prefix is stripped, then the platform shortener runs.
func (ctx *PathContext) shorten(relative string) string {
	short := relative
	vendorDirectories := ctx.VendorDirectories
	if vendorDirectories == nil {
		vendorDirectories = DefaultVendorDirectories
	}

	segments := strings.Split(filepath.ToSlash(short), "/")
	for i, segment := range segments {
		if isVendorDirectory(segment, vendorDirectories) && i+1 < len(segments) {
			short = strings.Join(segments[i+1:], "/")
			break
		}
	}

	if filepath.IsAbs(short) {
		if home, err := os.UserHomeDir(); err == nil {
			if rel, err := filepath.Rel(home, short); err == nil && !strings.HasPrefix(rel, "..") {
				short = rel
			}
		}
	}

	if ctx.Shortener != nil {
		short = ctx.Shortener(short)
	}
	return short
}

// isVendorDirectory indicates whether a path segment names one of the known dependency roots.
func isVendorDirectory(segment string, vendorDirectories []string) bool {
	for _, vendor := range vendorDirectories {
		if segment == vendor {
			return true
		}
	}
	return false
}

// expandPath expands a leading ~ and any environment variable references in the provided path.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.Expand(path, func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		// Unknown variables are kept verbatim rather than expanded to nothing.
		return "$" + name
	})
}

// canonicalPath makes the provided path absolute and resolves symlinks when the path exists. Resolution happens once
// at ingestion so the Absolute facet stays stable for the project lifetime.
func canonicalPath(path string) string {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(absolute); err == nil {
		return resolved
	}
	return filepath.Clean(absolute)
}

// StripPathPrefixes removes the given leading directory components from a slash-separated path, first match wins.
// Platform shorteners use it to drop layout directories such as contracts/ or src/.
func StripPathPrefixes(path string, prefixes ...string) string {
	for _, prefix := range prefixes {
		trimmed := strings.TrimSuffix(prefix, "/") + "/"
		if strings.HasPrefix(path, trimmed) {
			return strings.TrimPrefix(path, trimmed)
		}
	}
	return path
}
