package compilation

import (
	"testing"

	"github.com/crytic/crytic-compile-go/compilation/platforms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSupportedCompilationPlatforms(t *testing.T) {
	t.Parallel()

	supported := GetSupportedCompilationPlatforms()
	expected := []string{
		"archive", "foundry", "hardhat-v3", "hardhat", "truffle", "dapp", "brownie", "waffle",
		"embark", "etherlime", "buidler", "sourcify", "etherscan", "solc", "solc-json", "vyper",
	}
	assert.Equal(t, expected, supported, "platforms should list in detection priority order")
}

func TestIsSupportedCompilationPlatform(t *testing.T) {
	t.Parallel()

	for _, platform := range GetSupportedCompilationPlatforms() {
		assert.True(t, IsSupportedCompilationPlatform(platform))
	}

	// Identifiers match case-insensitively.
	assert.True(t, IsSupportedCompilationPlatform("Hardhat"))
	assert.True(t, IsSupportedCompilationPlatform("FOUNDRY"))

	assert.False(t, IsSupportedCompilationPlatform("remix"))
	assert.False(t, IsSupportedCompilationPlatform(""))
}

func TestPlatformDescriptorsOrdering(t *testing.T) {
	t.Parallel()

	descriptors := PlatformDescriptors()
	require.NotEmpty(t, descriptors)

	for i := 1; i < len(descriptors); i++ {
		previous, current := descriptors[i-1], descriptors[i]
		if previous.Priority == current.Priority {
			assert.Less(t, previous.Name, current.Name, "priority ties should break on name")
		} else {
			assert.Less(t, previous.Priority, current.Priority, "descriptors should order by priority")
		}
	}

	// The fallback tier carries the direct compiler adapters, name-sorted within the shared priority.
	fallback := descriptors[len(descriptors)-3:]
	assert.Equal(t, "solc", fallback[0].Name)
	assert.Equal(t, "solc-json", fallback[1].Name)
	assert.Equal(t, "vyper", fallback[2].Name)
	for _, descriptor := range fallback {
		assert.Equal(t, platforms.PriorityFallback, descriptor.Priority)
	}
}

func TestGetDefaultPlatformConfig(t *testing.T) {
	t.Parallel()

	// Every registered platform constructs a config carrying the requested target.
	for _, platform := range GetSupportedCompilationPlatforms() {
		platformConfig := GetDefaultPlatformConfig(platform, "some-target", nil)
		require.NotNil(t, platformConfig, "platform %s should have a generator", platform)
		assert.Equal(t, platform, platformConfig.Platform())
		assert.Equal(t, "some-target", platformConfig.GetTarget())
	}

	// Lookups are case-insensitive; unknown identifiers return nil.
	assert.NotNil(t, GetDefaultPlatformConfig("Truffle", ".", nil))
	assert.Nil(t, GetDefaultPlatformConfig("remix", ".", nil))
}

func TestGetDefaultPlatformConfigHonorsOptions(t *testing.T) {
	t.Parallel()

	options := &platforms.PlatformOptions{
		IgnoreCompile:  true,
		BuildDirectory: "custom-out",
	}
	platformConfig := GetDefaultPlatformConfig("foundry", ".", options)
	require.NotNil(t, platformConfig)

	foundryConfig, ok := platformConfig.(*platforms.FoundryCompilationConfig)
	require.True(t, ok)
	assert.True(t, foundryConfig.IgnoreCompile)
	assert.Equal(t, "custom-out", foundryConfig.BuildDirectory)
}
