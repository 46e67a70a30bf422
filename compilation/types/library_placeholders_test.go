package types

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryPlaceholderShape(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"MathLib", "__MathLib" + strings.Repeat("_", 31)},
		{"A", "__A" + strings.Repeat("_", 37)},
		// Names longer than 36 characters truncate before padding.
		{"ThisLibraryNameIsLongerThanThirtySixCharacters", "__ThisLibraryNameIsLongerThanThirtySix__"},
	}
	for _, tt := range tests {
		token := LibraryPlaceholder(tt.name)
		assert.Equal(t, tt.want, token)
		assert.Len(t, token, 40)
	}
}

func TestLibraryPlaceholderKeccakShape(t *testing.T) {
	token := LibraryPlaceholderKeccak("contracts/Math.sol:MathLib")
	assert.Len(t, token, 40)
	assert.True(t, strings.HasPrefix(token, "__$"))
	assert.True(t, strings.HasSuffix(token, "$__"))
	// Deterministic for the same qualified name.
	assert.Equal(t, token, LibraryPlaceholderKeccak("contracts/Math.sol:MathLib"))
	assert.NotEqual(t, token, LibraryPlaceholderKeccak("contracts/Math.sol:OtherLib"))
}

func TestFindPlaceholders(t *testing.T) {
	placeholderA := LibraryPlaceholder("NeedsLinkingA")
	placeholderB := LibraryPlaceholderKeccak("test.sol:NeedsLinkingB")
	template := "6080" + placeholderA + "6040" + placeholderB + placeholderA

	tokens := FindPlaceholders(template)
	require.Len(t, tokens, 2)
	assert.Equal(t, placeholderA, tokens[0])
	assert.Equal(t, placeholderB, tokens[1])
}

func TestPlaceholderName(t *testing.T) {
	assert.Equal(t, "MathLib", PlaceholderName(LibraryPlaceholder("MathLib")))
	assert.Equal(t, "MathLib", PlaceholderName(LibraryPlaceholder("contracts/M.sol:MathLib")))
	hashToken := LibraryPlaceholderKeccak("x.sol:Lib")
	assert.Equal(t, strings.Trim(strings.Trim(hashToken, "_"), "$"), PlaceholderName(hashToken))
}

func TestNormalizeLibraryAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
		wantErr bool
	}{
		{"0xdead", "000000000000000000000000000000000000dead", false},
		{"0x000000000000000000000000000000000000beef", "000000000000000000000000000000000000beef", false},
		{"0xAB12", "000000000000000000000000000000000000ab12", false},
		{"1234", "0000000000000000000000000000000000001234", false},
		{"0x", "", true},
		{"0xzz", "", true},
		{"0x10000000000000000000000000000000000000000", "", true},
	}
	for _, tt := range tests {
		normalized, err := NormalizeLibraryAddress(tt.address)
		if tt.wantErr {
			assert.Error(t, err, "address %q", tt.address)
			continue
		}
		require.NoError(t, err, "address %q", tt.address)
		assert.Equal(t, tt.want, normalized)
		assert.Len(t, normalized, 40)
	}
}

func TestLinkBytecodePartialAndStrict(t *testing.T) {
	placeholderRegex := regexp.MustCompile(`__.{36}__`)
	template := "6080" + LibraryPlaceholder("NeedsLinkingA") + "6040" + LibraryPlaceholder("NeedsLinkingB") + "00"

	// Linking only one library leaves the other placeholder intact.
	partial, err := LinkBytecode(template, map[string]string{"NeedsLinkingA": "0xdead"})
	require.NoError(t, err)
	assert.Len(t, placeholderRegex.FindAllString(partial, -1), 1)
	assert.Contains(t, partial, "000000000000000000000000000000000000dead")

	// Strict linking reports the unresolved library.
	_, err = LinkBytecodeStrict(template, map[string]string{"NeedsLinkingA": "0xdead"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedLibrary)
	assert.Contains(t, err.Error(), "NeedsLinkingB")

	// Both addresses resolve cleanly.
	linked, err := LinkBytecodeStrict(template, map[string]string{
		"NeedsLinkingA": "0xdead",
		"NeedsLinkingB": "0x000000000000000000000000000000000000beef",
	})
	require.NoError(t, err)
	assert.Empty(t, placeholderRegex.FindAllString(linked, -1))
}

// TestLinkBytecodeIdempotent verifies linking twice with the same map is stable and a superset never changes
// previously linked sites.
func TestLinkBytecodeIdempotent(t *testing.T) {
	template := "73" + LibraryPlaceholder("MathLib") + "00"
	addresses := map[string]string{"MathLib": "0x1111111111111111111111111111111111111111"}

	once, err := LinkBytecode(template, addresses)
	require.NoError(t, err)
	twice, err := LinkBytecode(once, addresses)
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	superset := map[string]string{
		"MathLib":  "0x1111111111111111111111111111111111111111",
		"OtherLib": "0x2222222222222222222222222222222222222222",
	}
	withSuperset, err := LinkBytecode(template, superset)
	require.NoError(t, err)
	assert.Equal(t, once, withSuperset)
}

func TestLinkBytecodeQualifiedNames(t *testing.T) {
	filename := Filename{Absolute: "/work/contracts/Math.sol", Used: "contracts/Math.sol"}
	token := LibraryPlaceholderKeccak("contracts/Math.sol:MathLib")
	template := "6080" + token + "00"

	linked, err := LinkBytecodeStrict(template, map[string]string{"MathLib": "0xdead"}, filename)
	require.NoError(t, err)
	assert.NotContains(t, linked, token)
}

func TestParseLibraryAddresses(t *testing.T) {
	libraries, err := ParseLibraryAddresses("(NeedsLinkingA, 0xdead),(NeedsLinkingB, 0x000000000000000000000000000000000000beef)")
	require.NoError(t, err)
	require.Len(t, libraries, 2)
	assert.Equal(t, "000000000000000000000000000000000000dead", libraries["NeedsLinkingA"])
	assert.Equal(t, "000000000000000000000000000000000000beef", libraries["NeedsLinkingB"])

	// An address without hex digits is rejected.
	_, err = ParseLibraryAddresses("(NeedsLinkingA, 0x)")
	assert.Error(t, err)

	// Empty input parses to no addresses.
	libraries, err = ParseLibraryAddresses("")
	require.NoError(t, err)
	assert.Nil(t, libraries)
}

func TestLibraryDeploymentOrder(t *testing.T) {
	dependencies := map[string][]string{
		"TestComplexDependencies": {"ComplexMath"},
		"ComplexMath":             {"AdvancedMath", "MathLib"},
		"AdvancedMath":            {"MathLib"},
		"MathLib":                 {},
		"SimpleMathContract":      {"MathLib"},
	}

	order, err := LibraryDeploymentOrder(dependencies, []string{"TestComplexDependencies", "SimpleMathContract"})
	require.NoError(t, err)

	// Targets are not part of the deployment order.
	assert.NotContains(t, order, "TestComplexDependencies")
	assert.NotContains(t, order, "SimpleMathContract")
	require.ElementsMatch(t, []string{"MathLib", "AdvancedMath", "ComplexMath"}, order)

	indexOf := func(name string) int {
		for i, entry := range order {
			if entry == name {
				return i
			}
		}
		return -1
	}
	assert.Less(t, indexOf("MathLib"), indexOf("AdvancedMath"))
	assert.Less(t, indexOf("AdvancedMath"), indexOf("ComplexMath"))
}

func TestLibraryDeploymentOrderCircular(t *testing.T) {
	dependencies := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
	}
	_, err := LibraryDeploymentOrder(dependencies, []string{"A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestGenerateLibraryAddresses(t *testing.T) {
	addresses := GenerateLibraryAddresses([]string{"MathLib", "AdvancedMath"})
	require.Len(t, addresses, 2)
	for _, address := range addresses {
		assert.Len(t, address, 40)
	}
	assert.NotEqual(t, addresses["MathLib"], addresses["AdvancedMath"])
}

func TestLinkFingerprint(t *testing.T) {
	template := "6080" + LibraryPlaceholder("MathLib")
	a := LinkFingerprint(template, map[string]string{"MathLib": "dead", "Other": "beef"})
	b := LinkFingerprint(template, map[string]string{"Other": "beef", "MathLib": "dead"})
	assert.Equal(t, a, b, "fingerprint should not depend on map iteration order")
	assert.NotEqual(t, a, LinkFingerprint(template, map[string]string{"MathLib": "dead"}))
	assert.NotEqual(t, a, LinkFingerprint(template+"00", map[string]string{"MathLib": "dead", "Other": "beef"}))
}
