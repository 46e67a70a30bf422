package platforms

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardhatVersionSplit(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hardhat.config.ts", "export default {};")

	hardhat := NewHardhatCompilationConfig(dir)
	hardhatV3 := NewHardhatV3CompilationConfig(dir)

	// Without a manifest the declared major is unknown, so the version 2 adapter claims the project.
	assert.True(t, hardhat.IsSupported(dir))
	assert.False(t, hardhatV3.IsSupported(dir))

	writeTestFile(t, dir, "package.json", `{"devDependencies":{"hardhat":"^2.22.0"}}`)
	assert.True(t, hardhat.IsSupported(dir))
	assert.False(t, hardhatV3.IsSupported(dir))

	writeTestFile(t, dir, "package.json", `{"devDependencies":{"hardhat":"^3.0.0"}}`)
	assert.False(t, hardhat.IsSupported(dir))
	assert.True(t, hardhatV3.IsSupported(dir))

	// Unparseable version declarations fall back to the version 2 adapter.
	writeTestFile(t, dir, "package.json", `{"devDependencies":{"hardhat":"latest"}}`)
	assert.True(t, hardhat.IsSupported(dir))
	assert.False(t, hardhatV3.IsSupported(dir))
}

func TestDappIsSupported(t *testing.T) {
	dir := t.TempDir()
	config := NewDappCompilationConfig(dir)
	assert.False(t, config.IsSupported(dir))

	// A Makefile alone is not enough; it has to invoke the dapp tool.
	writeTestFile(t, dir, "Makefile", "all:\n\tgcc main.c\n")
	assert.False(t, config.IsSupported(dir))

	writeTestFile(t, dir, "Makefile", "all:\n\tdapp build\n")
	assert.True(t, config.IsSupported(dir))
}

func TestManifestDependencyDetection(t *testing.T) {
	dir := t.TempDir()
	waffle := NewWaffleCompilationConfig(dir)
	etherlime := NewEtherlimeCompilationConfig(dir)

	assert.False(t, waffle.IsSupported(dir))
	assert.False(t, etherlime.IsSupported(dir))

	writeTestFile(t, dir, "package.json", `{"dependencies":{"ethereum-waffle":"^4.0.0"}}`)
	assert.True(t, waffle.IsSupported(dir))
	assert.False(t, etherlime.IsSupported(dir))

	// Either etherlime package name marks an etherlime project, in runtime or dev dependencies.
	writeTestFile(t, dir, "package.json", `{"devDependencies":{"etherlime-lib":"1.3.0"}}`)
	assert.True(t, etherlime.IsSupported(dir))
	writeTestFile(t, dir, "package.json", `{"dependencies":{"etherlime":"2.3.2"}}`)
	assert.True(t, etherlime.IsSupported(dir))

	// A malformed manifest reads the same as a missing one.
	writeTestFile(t, dir, "package.json", "{")
	assert.False(t, waffle.IsSupported(dir))
	assert.False(t, etherlime.IsSupported(dir))
}

func TestMarkerFileDetection(t *testing.T) {
	dir := t.TempDir()

	embark := NewEmbarkCompilationConfig(dir)
	assert.False(t, embark.IsSupported(dir))
	writeTestFile(t, dir, "embark.json", "{}")
	assert.True(t, embark.IsSupported(dir))

	buidler := NewBuidlerCompilationConfig(dir)
	assert.False(t, buidler.IsSupported(dir))
	writeTestFile(t, dir, "buidler.config.ts", "export default {};")
	assert.True(t, buidler.IsSupported(dir))

	foundry := NewFoundryCompilationConfig(dir)
	assert.False(t, foundry.IsSupported(dir))
	writeTestFile(t, dir, "foundry.toml", "[profile.default]")
	assert.True(t, foundry.IsSupported(dir))
}

func TestBrownieDefersToFoundry(t *testing.T) {
	dir := t.TempDir()
	config := NewBrownieCompilationConfig(dir)
	assert.False(t, config.IsSupported(dir))

	writeTestFile(t, dir, "brownie-config.json", "{}")
	assert.True(t, config.IsSupported(dir))

	// Foundry ports often keep the brownie config around; the foundry adapter takes those.
	writeTestFile(t, dir, "foundry.toml", "[profile.default]")
	assert.False(t, config.IsSupported(dir))
}

func TestSourcifyTargetGrammar(t *testing.T) {
	config := NewSourcifyCompilationConfig("")

	assert.True(t, config.IsSupported("sourcify-1:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.True(t, config.IsSupported("sourcify-0x89:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.True(t, config.IsSupported(" sourcify-137:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D "))

	assert.False(t, config.IsSupported("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.False(t, config.IsSupported("sourcify-:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.False(t, config.IsSupported("sourcify-1:0x7a250d5630"))
	assert.False(t, config.IsSupported("sourcify-1:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D/extra"))
}

func TestEtherscanTargetGrammar(t *testing.T) {
	config := NewEtherscanCompilationConfig("")

	assert.True(t, config.IsSupported("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.True(t, config.IsSupported("goerli:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.True(t, config.IsSupported("mainet:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))

	assert.False(t, config.IsSupported("0x7a250d5630"))
	assert.False(t, config.IsSupported("base:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"))
	assert.False(t, config.IsSupported("contracts/Token.sol"))
}

func TestArchiveIsSupported(t *testing.T) {
	config := NewArchiveCompilationConfig("")

	assert.True(t, config.IsSupported("crytic_export_archive.json"))
	assert.True(t, config.IsSupported("crytic_export.json"))
	assert.True(t, config.IsSupported("bundle.zip"))
	assert.True(t, config.IsSupported("bundle.zip.base64"))

	assert.False(t, config.IsSupported("export.json"))
	assert.False(t, config.IsSupported("bundle.tar.gz"))
}

func TestVyperIsSupported(t *testing.T) {
	dir := t.TempDir()
	vyFile := writeTestFile(t, dir, "token.vy", "# vyper source")

	config := NewVyperCompilationConfig(vyFile)
	assert.True(t, config.IsSupported(vyFile))
	assert.False(t, config.IsSupported(dir))
	assert.False(t, config.IsSupported(filepath.Join(dir, "missing.vy")))
}

func TestSetTargetRoundTrip(t *testing.T) {
	for _, config := range []PlatformConfig{
		NewFoundryCompilationConfig("before"),
		NewHardhatCompilationConfig("before"),
		NewSolcCompilationConfig("before"),
		NewArchiveCompilationConfig("before"),
	} {
		require.Equal(t, "before", config.GetTarget(), config.Platform())
		config.SetTarget("after")
		assert.Equal(t, "after", config.GetTarget(), config.Platform())
	}
}

func TestGuessedTests(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, []string{"forge test"}, NewFoundryCompilationConfig(dir).GuessedTests())
	assert.Equal(t, []string{"hardhat test"}, NewHardhatCompilationConfig(dir).GuessedTests())
	assert.Equal(t, []string{"truffle test"}, NewTruffleCompilationConfig(dir).GuessedTests())
	assert.Equal(t, []string{"brownie test"}, NewBrownieCompilationConfig(dir).GuessedTests())
	assert.Equal(t, []string{"dapp test"}, NewDappCompilationConfig(dir).GuessedTests())
	assert.Equal(t, []string{"npx mocha"}, NewWaffleCompilationConfig(dir).GuessedTests())

	// Remote bundles and bare source files carry no test harness.
	assert.Nil(t, NewEtherscanCompilationConfig("0x00").GuessedTests())
	assert.Nil(t, NewSourcifyCompilationConfig("").GuessedTests())
	assert.Nil(t, NewVyperCompilationConfig("token.vy").GuessedTests())
}

func TestFindSourceFilesSkipsVendoredTrees(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "Token.sol", "contract Token {}")
	writeTestFile(t, dir, filepath.Join("contracts", "Sale.sol"), "contract Sale {}")
	writeTestFile(t, dir, filepath.Join("node_modules", "@openzeppelin", "Ownable.sol"), "contract Ownable {}")
	writeTestFile(t, dir, filepath.Join(".deps", "Hidden.sol"), "contract Hidden {}")
	writeTestFile(t, dir, "README.md", "docs")

	found := FindSolidityFiles(dir)
	require.Len(t, found, 2)
	assert.Equal(t, filepath.Join(dir, "Token.sol"), found[0])
	assert.Equal(t, filepath.Join(dir, "contracts", "Sale.sol"), found[1])
}

func TestFindSourceFilesWalksHiddenRoot(t *testing.T) {
	// A hidden directory is only pruned below the walk root. Targeting the hidden directory itself still
	// finds its sources.
	dir := t.TempDir()
	writeTestFile(t, dir, filepath.Join(".staging", "Token.sol"), "contract Token {}")

	found := FindSolidityFiles(filepath.Join(dir, ".staging"))
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, ".staging", "Token.sol"), found[0])
}

func TestFindVyperFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "token.vy", "# vyper")
	writeTestFile(t, dir, "Token.sol", "contract Token {}")

	found := FindVyperFiles(dir)
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, "token.vy"), found[0])
}

func TestEtherlimeOptionsWiring(t *testing.T) {
	options := &PlatformOptions{
		IgnoreCompile:             true,
		EtherlimeCompileArguments: "--solc-version 0.8.17 --run 200",
		BuildDirectory:            "out",
	}
	config := NewEtherlimeCompilationConfigWithOptions("project", options)
	assert.True(t, config.IgnoreCompile)
	assert.Equal(t, "--solc-version 0.8.17 --run 200", config.CompileArguments)
	assert.Equal(t, "out", config.BuildDirectory)

	// A nil options set keeps the zero configuration.
	bare := NewEtherlimeCompilationConfigWithOptions("project", nil)
	assert.Empty(t, bare.CompileArguments)
}
