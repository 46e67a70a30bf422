package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// etherscanAPIBase is the getsourcecode endpoint, parametrized by the network host suffix and the address.
const etherscanAPIBase = "https://api%s.etherscan.io/api?module=contract&action=getsourcecode&address=%s"

// etherscanExportSubdir holds materialized sources under the export directory.
const etherscanExportSubdir = "etherscan-contracts"

// etherscanNetworks maps the target network prefix to the API host suffix.
var etherscanNetworks = map[string]string{
	"mainet":   "",
	"ropsten":  "-ropsten",
	"kovan":    "-kovan",
	"rinkeby":  "-rinkeby",
	"goerli":   "-goerli",
	"sepolia":  "-sepolia",
	"tobalaba": "-tobalaba",
}

// EtherscanCompilationConfig represents the Etherscan fetcher. It downloads a verified source bundle, materializes
// it under the export directory, and re-dispatches compilation through the direct solc adapters with the
// recovered compiler settings.
type EtherscanCompilationConfig struct {
	// Target is the contract address, optionally prefixed by a network name and a colon.
	Target string `json:"target"`

	// APIKey authenticates API requests. The ETHERSCAN_API_KEY environment variable is the fallback.
	APIKey string `json:"api_key,omitempty"`

	// ExportDirectory is where fetched sources are materialized, "crytic-export" by default.
	ExportDirectory string `json:"export_directory,omitempty"`
}

// NewEtherscanCompilationConfig returns an Etherscan fetcher config for the provided address target.
func NewEtherscanCompilationConfig(target string) *EtherscanCompilationConfig {
	return &EtherscanCompilationConfig{Target: target}
}

// NewEtherscanCompilationConfigWithOptions returns an Etherscan fetcher config honoring the shared platform
// options.
func NewEtherscanCompilationConfigWithOptions(target string, options *PlatformOptions) *EtherscanCompilationConfig {
	config := NewEtherscanCompilationConfig(target)
	config.ExportDirectory = options.exportDirectoryOrDefault()
	if options != nil {
		config.APIKey = options.EtherscanAPIKey
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (e *EtherscanCompilationConfig) Platform() string {
	return "etherscan"
}

// Priority returns the detection priority for the configuration.
func (e *EtherscanCompilationConfig) Priority() int {
	return PriorityEtherscan
}

// GetTarget returns the target for compilation.
func (e *EtherscanCompilationConfig) GetTarget() string {
	return e.Target
}

// SetTarget sets the new target for compilation.
func (e *EtherscanCompilationConfig) SetTarget(newTarget string) {
	e.Target = newTarget
}

// IsSupported reports whether the target is a contract address, optionally prefixed with a supported network.
func (e *EtherscanCompilationConfig) IsSupported(target string) bool {
	_, address, ok := splitEtherscanTarget(target)
	return ok && common.IsHexAddress(address)
}

// IsDependency reports whether the path is a vendored dependency. Fetched bundles have none.
func (e *EtherscanCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run. Fetched bundles have none.
func (e *EtherscanCompilationConfig) GuessedTests() []string {
	return nil
}

// Clean removes build artifacts. Materialized sources are kept for inspection.
func (e *EtherscanCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// etherscanAPIResponse is the envelope of every Etherscan API reply.
type etherscanAPIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// etherscanContractInfo is the getsourcecode result for one contract.
type etherscanContractInfo struct {
	SourceCode       string `json:"SourceCode"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
	EVMVersion       string `json:"EVMVersion"`
}

// Compile obtains the verified source bundle and compiles it with the recovered settings. A bundle materialized
// by a previous run is reused directly; otherwise the sources are fetched first.
func (e *EtherscanCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	network, address, ok := splitEtherscanTarget(e.Target)
	if !ok || !common.IsHexAddress(address) {
		return nil, "", fmt.Errorf("%w: %q is not a contract address", types.ErrInvalidTarget, e.Target)
	}
	suffix := etherscanNetworks[network]

	delegate, contractName, reused := e.materializedBundle(suffix, address)
	if !reused {
		var err error
		delegate, contractName, err = e.fetchAndMaterialize(suffix, address)
		if err != nil {
			return nil, "", err
		}
	}

	units, warnings, err := delegate.Compile(project)
	if err != nil {
		return nil, warnings, err
	}
	// The verified contract name identifies the unit better than a synthetic path does.
	if len(units) == 1 && contractName != "" {
		units[0].ID = contractName
	}
	return units, warnings, nil
}

// fetchAndMaterialize downloads the verified source bundle for the address, writes it under the export
// directory, and returns the delegate adapter configured the way the contract was verified, along with the
// verified contract name.
func (e *EtherscanCompilationConfig) fetchAndMaterialize(suffix string, address string) (PlatformConfig, string, error) {
	client := newFetchClient(e.exportDirectory())
	defer client.Close()
	info, err := e.fetchContractInfo(client, e.contractInfoURL(suffix, address))
	if err != nil {
		return nil, "", err
	}
	if info.SourceCode == "" {
		return nil, "", fmt.Errorf("%w: %s has no verified source on etherscan", types.ErrSourceNotVerified, e.Target)
	}

	version := versionPattern.FindString(info.CompilerVersion)
	if version == "" {
		return nil, "", fmt.Errorf("%w: could not parse the etherscan compiler version %q",
			types.ErrCompilationFailed, info.CompilerVersion)
	}
	optimized := info.OptimizationUsed == "1"
	optimizeRuns, _ := strconv.Atoi(info.Runs)
	evmVersion := info.EVMVersion
	if strings.EqualFold(evmVersion, "Default") {
		evmVersion = ""
	}

	delegate, err := e.materialize(info, suffix, address, version, optimized, optimizeRuns, evmVersion)
	if err != nil {
		return nil, "", err
	}
	return delegate, info.ContractName, nil
}

// materializedBundle looks for a source bundle left behind by a previous fetch of the address. A bundle
// directory carrying the recovered config file is complete, so the fetch is skipped and compilation runs
// against the materialized sources directly.
func (e *EtherscanCompilationConfig) materializedBundle(suffix string, address string) (PlatformConfig, string, bool) {
	prefix := address + suffix + "-"
	matches, err := filepath.Glob(filepath.Join(e.exportDirectory(), etherscanExportSubdir, prefix+"*"))
	if err != nil {
		return nil, "", false
	}
	for _, directory := range matches {
		if !utils.DirectoryExists(directory) {
			continue
		}
		recovered, err := readRecoveredConfig(filepath.Join(directory, recoveredConfigFileName))
		if err != nil {
			continue
		}
		if len(FindSolidityFiles(directory)) == 0 {
			continue
		}
		config := &SolcStandardJSONConfig{
			Targets:          []string{directory},
			SolcVersion:      recovered.Version,
			Remappings:       strings.Fields(recovered.Remaps),
			WorkingDirectory: directory,
		}
		applyRecoveredArgs(config, recovered.Args)
		logging.GlobalLogger.Info("Reusing the materialized etherscan bundle at ", directory)
		return config, strings.TrimPrefix(filepath.Base(directory), prefix), true
	}
	return nil, "", false
}

// contractInfoURL builds the getsourcecode query for the address, appending the configured API key or the
// ETHERSCAN_API_KEY environment fallback.
func (e *EtherscanCompilationConfig) contractInfoURL(suffix string, address string) string {
	url := fmt.Sprintf(etherscanAPIBase, suffix, address)
	apiKey := e.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ETHERSCAN_API_KEY")
	}
	if apiKey != "" {
		url += "&apikey=" + apiKey
	}
	return url
}

// fetchContractInfo queries the getsourcecode endpoint, retrying when the service reports its in-band rate
// limit, and returns the first result entry.
func (e *EtherscanCompilationConfig) fetchContractInfo(client *fetchClient, url string) (*etherscanContractInfo, error) {
	ctx := context.Background()
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDelay(attempt))
		}

		body, status, err := client.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		if status != 200 {
			return nil, fmt.Errorf("%w: etherscan returned status %d", types.ErrNetworkError, status)
		}

		var response etherscanAPIResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("could not parse the etherscan response: %v", err)
		}

		// Rate limiting arrives as a successful reply whose result is a plain string.
		var textResult string
		if err := json.Unmarshal(response.Result, &textResult); err == nil {
			client.forget(url)
			if strings.Contains(textResult, "rate limit") {
				logging.GlobalLogger.Warn("Etherscan rate limit reached, retrying")
				continue
			}
			return nil, fmt.Errorf("%w: etherscan error: %s", types.ErrNetworkError, textResult)
		}
		if !strings.HasPrefix(response.Message, "OK") {
			client.forget(url)
			return nil, fmt.Errorf("%w: etherscan error: %s", types.ErrNetworkError, response.Message)
		}

		var results []etherscanContractInfo
		if err := json.Unmarshal(response.Result, &results); err != nil {
			return nil, fmt.Errorf("could not parse the etherscan result: %v", err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: etherscan returned no contract info", types.ErrSourceNotVerified)
		}
		return &results[0], nil
	}
	return nil, fmt.Errorf("%w: etherscan rate limit persisted across retries", types.ErrNetworkError)
}

// materialize writes the fetched sources under the export directory and builds the solc adapter configured the
// way the contract was verified.
func (e *EtherscanCompilationConfig) materialize(info *etherscanContractInfo, suffix string, address string,
	version string, optimized bool, optimizeRuns int, evmVersion string) (PlatformConfig, error) {
	exportDirectory := filepath.Join(e.exportDirectory(), etherscanExportSubdir)
	bundleName := address + suffix + "-" + info.ContractName

	var solcArgs []string
	if optimized {
		solcArgs = append(solcArgs, "--optimize")
		if optimizeRuns > 0 {
			solcArgs = append(solcArgs, "--optimize-runs", strconv.Itoa(optimizeRuns))
		}
	}

	source := info.SourceCode
	switch {
	case strings.HasPrefix(source, "{{"):
		// Verified standard-JSON inputs arrive wrapped in an extra brace pair.
		var input StandardJSONInput
		if err := json.Unmarshal([]byte(source[1:len(source)-1]), &input); err != nil {
			return nil, fmt.Errorf("could not parse the verified standard-json input: %v", err)
		}
		contents := make(map[string]string, len(input.Sources))
		for path, entry := range input.Sources {
			contents[path] = entry.Content
		}
		directory := filepath.Join(exportDirectory, bundleName)
		files, err := writeSourceBundle(directory, contents)
		if err != nil {
			return nil, err
		}
		remappings := SanitizeRemappings(input.Settings.Remappings)
		config := &SolcStandardJSONConfig{
			Targets:          files,
			SolcVersion:      version,
			Remappings:       remappings,
			EVMVersion:       firstNonEmpty(input.Settings.EVMVersion, evmVersion),
			ViaIR:            input.Settings.ViaIR,
			Optimize:         optimized || (input.Settings.Optimizer != nil && input.Settings.Optimizer.Enabled),
			OptimizeRuns:     optimizeRuns,
			WorkingDirectory: directory,
		}
		if config.OptimizeRuns == 0 && input.Settings.Optimizer != nil {
			config.OptimizeRuns = input.Settings.Optimizer.Runs
		}
		if err := writeRecoveredConfig(directory, version, remappings, config.Optimize, config.OptimizeRuns, config.EVMVersion, config.ViaIR); err != nil {
			return nil, err
		}
		return config, nil

	case strings.HasPrefix(source, "{"):
		// Multi-file bundles are a JSON map of path to content, sometimes nested under a sources key.
		contents, err := parseEtherscanMultiFile(source)
		if err != nil {
			return nil, err
		}
		directory := filepath.Join(exportDirectory, bundleName)
		files, err := writeSourceBundle(directory, contents)
		if err != nil {
			return nil, err
		}
		config := &SolcStandardJSONConfig{
			Targets:          files,
			SolcVersion:      version,
			EVMVersion:       evmVersion,
			Optimize:         optimized,
			OptimizeRuns:     optimizeRuns,
			WorkingDirectory: directory,
		}
		if err := writeRecoveredConfig(directory, version, nil, optimized, optimizeRuns, evmVersion, false); err != nil {
			return nil, err
		}
		return config, nil

	default:
		path := filepath.Join(exportDirectory, bundleName+".sol")
		if err := writeSourceFile(path, source); err != nil {
			return nil, err
		}
		return &SolcCompilationConfig{
			Target:           filepath.Base(path),
			SolcVersion:      version,
			SolcArgs:         solcArgs,
			WorkingDirectory: exportDirectory,
		}, nil
	}
}

// exportDirectory returns the configured export directory or the conventional default.
func (e *EtherscanCompilationConfig) exportDirectory() string {
	if e.ExportDirectory != "" {
		return e.ExportDirectory
	}
	return "crytic-export"
}

// parseEtherscanMultiFile decodes a multi-file source bundle into path to content.
func parseEtherscanMultiFile(source string) (map[string]string, error) {
	var wrapped struct {
		Sources map[string]struct {
			Content string `json:"content"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(source), &wrapped); err == nil && len(wrapped.Sources) > 0 {
		contents := make(map[string]string, len(wrapped.Sources))
		for path, entry := range wrapped.Sources {
			contents[path] = entry.Content
		}
		return contents, nil
	}

	var flat map[string]struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(source), &flat); err != nil {
		return nil, fmt.Errorf("could not parse the verified source bundle: %v", err)
	}
	contents := make(map[string]string, len(flat))
	for path, entry := range flat {
		contents[path] = entry.Content
	}
	return contents, nil
}

// writeSourceBundle materializes a fetched source tree below the directory and returns the written file paths
// relative to it, sorted with the primary file order preserved by path.
func writeSourceBundle(directory string, contents map[string]string) ([]string, error) {
	paths := maps.Keys(contents)
	slices.Sort(paths)

	files := make([]string, 0, len(paths))
	for _, original := range paths {
		relative := relocateBundlePath(original)
		path, err := safeJoin(directory, relative)
		if err != nil {
			return nil, err
		}
		if err := writeSourceFile(path, contents[original]); err != nil {
			return nil, err
		}
		trimmed, err := filepath.Rel(directory, path)
		if err != nil {
			trimmed = relative
		}
		files = append(files, trimmed)
	}
	return files, nil
}

// relocateBundlePath normalizes a source path from a verified bundle: project layout components before a
// contracts directory are dropped, while package-style paths starting with @ stay as published.
func relocateBundlePath(path string) string {
	if strings.HasPrefix(path, "@") {
		return path
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "contracts" {
			return strings.Join(parts[i:], "/")
		}
	}
	return path
}

// writeSourceFile writes one materialized source, leaving already materialized files untouched so local edits
// survive repeated fetches.
func writeSourceFile(path string, content string) error {
	if utils.FileExists(path) {
		return nil
	}
	return utils.WriteFile(path, []byte(content))
}

// recoveredConfigFileName is written next to materialized sources so a bundle can be recompiled directly,
// either by a later run of the fetcher or by pointing --config-file at it.
const recoveredConfigFileName = "crytic_compile.config.json"

// writeRecoveredConfig records the recovered compiler settings next to the materialized sources so the bundle
// can be recompiled directly.
func writeRecoveredConfig(directory string, version string, remappings []string, optimized bool, optimizeRuns int,
	evmVersion string, viaIR bool) error {
	var solcArgs []string
	if viaIR {
		solcArgs = append(solcArgs, "--via-ir")
	}
	if optimized {
		solcArgs = append(solcArgs, "--optimize")
		if optimizeRuns > 0 {
			solcArgs = append(solcArgs, "--optimize-runs", strconv.Itoa(optimizeRuns))
		}
	}
	if evmVersion != "" {
		solcArgs = append(solcArgs, "--evm-version", evmVersion)
	}

	config := map[string]any{"solc_solcs_select": version}
	if len(remappings) > 0 {
		config["solc_remaps"] = strings.Join(remappings, " ")
	}
	if len(solcArgs) > 0 {
		config["solc_args"] = strings.Join(solcArgs, " ")
	}
	encoded, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(directory, recoveredConfigFileName), encoded)
}

// recoveredConfig is the shape of the config recorded next to materialized bundles.
type recoveredConfig struct {
	Version string `json:"solc_solcs_select"`
	Remaps  string `json:"solc_remaps,omitempty"`
	Args    string `json:"solc_args,omitempty"`
}

// readRecoveredConfig loads the compiler settings recorded next to a materialized bundle.
func readRecoveredConfig(path string) (*recoveredConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config recoveredConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config.Version == "" {
		return nil, fmt.Errorf("the recovered config at %s names no compiler version", path)
	}
	return &config, nil
}

// applyRecoveredArgs folds recorded solc arguments back into the standard-json config fields they came from.
func applyRecoveredArgs(config *SolcStandardJSONConfig, args string) {
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "--via-ir":
			config.ViaIR = true
		case "--optimize":
			config.Optimize = true
		case "--optimize-runs":
			if i+1 < len(fields) {
				config.OptimizeRuns, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "--evm-version":
			if i+1 < len(fields) {
				config.EVMVersion = fields[i+1]
				i++
			}
		}
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// splitEtherscanTarget splits an address target into its optional network prefix and the address. Unknown
// network prefixes are rejected.
func splitEtherscanTarget(target string) (string, string, bool) {
	target = strings.TrimSpace(target)
	network, address, found := strings.Cut(target, ":")
	if !found {
		return "mainet", target, true
	}
	if _, ok := etherscanNetworks[network]; !ok {
		return "", "", false
	}
	return network, strings.TrimSpace(address), true
}
