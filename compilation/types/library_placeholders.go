package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// placeholderLength is the exact character length of a library placeholder token within hex bytecode.
const placeholderLength = 40

// libraryPlaceholderPattern matches any library placeholder token: two underscores, 36 payload characters, two
// underscores. Both the 0.4-style padded-name tokens and the 0.5-style $keccak$ tokens have this shape.
var libraryPlaceholderPattern = regexp.MustCompile(`__.{36}__`)

// keccak256 computes the legacy Keccak-256 digest used by the EVM.
func keccak256(data []byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// LibraryPlaceholder returns the 0.4-style placeholder token for a library name: the name truncated to 36 characters,
// padded with underscores to 38, wrapped in double underscores. The token is always exactly 40 characters.
func LibraryPlaceholder(name string) string {
	if len(name) > 36 {
		name = name[:36]
	}
	return "__" + name + strings.Repeat("_", 38-len(name))
}

// LibraryPlaceholderKeccak returns the 0.5-style placeholder token for a fully qualified library name:
// __$ followed by the first 34 hex characters of the keccak256 hash of the name, closed with $__.
func LibraryPlaceholderKeccak(fullyQualifiedName string) string {
	hash := hex.EncodeToString(keccak256([]byte(fullyQualifiedName)))
	return "__$" + hash[:34] + "$__"
}

// PlaceholderCandidates returns every placeholder token the compiler may have emitted for a library, across both
// token styles and the known name qualifications (bare name, absolute-path qualified, used-path qualified).
func PlaceholderCandidates(name string, filename Filename) []string {
	variants := []string{name}
	if filename.Absolute != "" {
		variants = append(variants, filename.Absolute+":"+name)
	}
	if filename.Used != "" && filename.Used != filename.Absolute {
		variants = append(variants, filename.Used+":"+name)
	}

	candidates := make([]string, 0, len(variants)*2)
	seen := make(map[string]struct{})
	for _, variant := range variants {
		for _, token := range []string{LibraryPlaceholder(variant), LibraryPlaceholderKeccak(variant)} {
			if _, duplicate := seen[token]; duplicate {
				continue
			}
			seen[token] = struct{}{}
			candidates = append(candidates, token)
		}
	}
	return candidates
}

// FindPlaceholders returns the distinct placeholder tokens present in a bytecode template, in order of first
// appearance.
func FindPlaceholders(bytecode string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	for _, token := range libraryPlaceholderPattern.FindAllString(bytecode, -1) {
		if _, duplicate := seen[token]; duplicate {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// PlaceholderName extracts a best-effort library name from a placeholder token. For 0.4-style tokens this is the
// padded name with qualification and padding stripped; 0.5-style tokens only carry a hash, which is returned as-is.
func PlaceholderName(token string) string {
	core := strings.TrimSuffix(strings.TrimPrefix(token, "__"), "__")
	if strings.HasPrefix(core, "$") && strings.HasSuffix(core, "$") {
		return strings.Trim(core, "$")
	}
	name := strings.TrimRight(core, "_")
	// Qualified placeholders embed path:name; only the trailing name component is meaningful to callers.
	if separator := strings.LastIndex(name, ":"); separator != -1 {
		name = name[separator+1:]
	}
	return name
}

// NormalizeLibraryAddress validates a library address string and renders it as 40 lowercase hex characters without a
// 0x prefix. Short addresses are zero-padded on the left; values wider than 160 bits are rejected.
func NormalizeLibraryAddress(address string) (string, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if digits == "" {
		return "", fmt.Errorf("library address '%s' has no hex digits", address)
	}

	// uint256 parsing rejects redundant leading zeros, so trim to the minimal form first.
	trimmed := strings.TrimLeft(strings.ToLower(digits), "0")
	if trimmed == "" {
		trimmed = "0"
	}
	value, err := uint256.FromHex("0x" + trimmed)
	if err != nil {
		return "", fmt.Errorf("library address '%s' is not valid hex: %v", address, err)
	}
	if value.BitLen() > 160 {
		return "", fmt.Errorf("library address '%s' is wider than 160 bits", address)
	}
	addressBytes := value.Bytes20()
	return hex.EncodeToString(addressBytes[:]), nil
}

// LinkBytecode substitutes library addresses into a bytecode template. Every known placeholder token of each provided
// library is replaced by its normalized 40-hex address; placeholders belonging to libraries absent from the map are
// left intact so linking may proceed in stages. The template itself is never mutated.
func LinkBytecode(template string, addresses map[string]string, filenames ...Filename) (string, error) {
	linked := template
	for name, address := range addresses {
		normalized, err := NormalizeLibraryAddress(address)
		if err != nil {
			return "", err
		}

		tokens := PlaceholderCandidates(name, Filename{})
		for _, filename := range filenames {
			tokens = append(tokens, PlaceholderCandidates(name, filename)...)
		}
		for _, token := range tokens {
			linked = strings.ReplaceAll(linked, token, normalized)
		}
	}
	return linked, nil
}

// LinkBytecodeStrict links a template like LinkBytecode and then fails with ErrUnresolvedLibrary when any placeholder
// survives the substitution.
func LinkBytecodeStrict(template string, addresses map[string]string, filenames ...Filename) (string, error) {
	linked, err := LinkBytecode(template, addresses, filenames...)
	if err != nil {
		return "", err
	}
	if remaining := FindPlaceholders(linked); len(remaining) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedLibrary, PlaceholderName(remaining[0]))
	}
	return linked, nil
}

// LinkFingerprint derives a stable identifier for a (template, address map) pair, used to key per-unit link caches.
func LinkFingerprint(template string, addresses map[string]string) string {
	names := make([]string, 0, len(addresses))
	for name := range addresses {
		names = append(names, name)
	}
	sort.Strings(names)

	hasher := sha256.New()
	hasher.Write([]byte(template))
	for _, name := range names {
		hasher.Write([]byte(name))
		hasher.Write([]byte{':'})
		hasher.Write([]byte(addresses[name]))
		hasher.Write([]byte{';'})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// libraryAddressPairPattern matches one (name, address) pair of a library specification string.
var libraryAddressPairPattern = regexp.MustCompile(`\(\s*([^,()]+?)\s*,\s*([^,()]+?)\s*\)`)

// ParseLibraryAddresses parses a library specification of the form (Name, 0xAddress),(Other, 0xAddress) into a
// name-to-address map. Addresses are validated and normalized; an address without hex digits is an error.
func ParseLibraryAddresses(spec string) (map[string]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	matches := libraryAddressPairPattern.FindAllStringSubmatch(spec, -1)
	if matches == nil {
		return nil, fmt.Errorf("invalid library specification '%s', expected (Name, 0xAddress),...", spec)
	}

	libraries := make(map[string]string, len(matches))
	for _, match := range matches {
		name := match[1]
		normalized, err := NormalizeLibraryAddress(match[2])
		if err != nil {
			return nil, err
		}
		libraries[name] = normalized
	}
	return libraries, nil
}

// LibraryDeploymentOrder computes the order in which libraries needed by the target contracts must be deployed:
// every transitive dependency of a target, topologically sorted so that a library precedes its dependents. The
// targets themselves are excluded from the result. A dependency cycle is an error.
func LibraryDeploymentOrder(dependencies map[string][]string, targets []string) ([]string, error) {
	// Collect every contract reachable from the targets through dependency edges; those are the libraries that
	// must exist on chain before the targets deploy.
	needed := make(map[string]struct{})
	queue := append([]string(nil), targets...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependency := range dependencies[current] {
			if _, visited := needed[dependency]; visited {
				continue
			}
			needed[dependency] = struct{}{}
			queue = append(queue, dependency)
		}
	}

	// Kahn's algorithm over the needed subgraph. Ready nodes are drained in sorted order so the result is
	// deterministic across runs.
	inDegree := make(map[string]int, len(needed))
	for name := range needed {
		inDegree[name] = 0
	}
	for name := range needed {
		for _, dependency := range dependencies[name] {
			if _, relevant := needed[dependency]; relevant {
				inDegree[name]++
			}
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(needed))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		var unblocked []string
		for name := range needed {
			for _, dependency := range dependencies[name] {
				if dependency == current {
					inDegree[name]--
					if inDegree[name] == 0 {
						unblocked = append(unblocked, name)
					}
				}
			}
		}
		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	if len(order) != len(needed) {
		return order, fmt.Errorf("circular dependency detected between libraries")
	}
	return order, nil
}

// autoLinkAddressBase is the first address handed out when library addresses are generated rather than provided.
const autoLinkAddressBase = 0xa070

// GenerateLibraryAddresses assigns deterministic sequential addresses to the provided library names, for use when the
// caller wants linked bytecode without caring about concrete deployment addresses.
func GenerateLibraryAddresses(names []string) map[string]string {
	addresses := make(map[string]string, len(names))
	for i, name := range names {
		addresses[name] = fmt.Sprintf("%040x", autoLinkAddressBase+uint64(i))
	}
	return addresses
}
