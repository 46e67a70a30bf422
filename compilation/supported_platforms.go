package compilation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/platforms"
)

// platformConfigGenerator builds an adapter configuration for the given target from shared platform options.
type platformConfigGenerator func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig

// defaultPlatformConfigGenerator is a mapping of platform identifier to generator functions which can be used to
// create a configuration for the given platform. Each platform which provides a generator in this mapping is
// considered a supported compilation platform. Items are populated in the init method.
var defaultPlatformConfigGenerator map[string]platformConfigGenerator

// platformDescriptors caches the identifier and detection priority of every registered platform, ordered by
// priority. It is populated in the init method alongside the generator mapping.
var platformDescriptors []PlatformDescriptor

// PlatformDescriptor summarizes a registered platform for listings and detection ordering.
type PlatformDescriptor struct {
	// Name is the platform identifier, e.g. "hardhat".
	Name string

	// Priority is the detection rank of the platform. Lower values are probed first.
	Priority int
}

// init is called once per inclusion of a package. This method is used on startup to populate
// defaultPlatformConfigGenerator and add supported platforms.
func init() {
	// Define the list of platform config generators.
	generators := []platformConfigGenerator{
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewArchiveCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewFoundryCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewHardhatV3CompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewHardhatCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewTruffleCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewDappCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewBrownieCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewWaffleCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewEmbarkCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewEtherlimeCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewBuidlerCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewSourcifyCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewEtherscanCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewSolcCompilationConfigWithOptions(target, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewSolcStandardJSONConfig([]string{target}, options)
		},
		func(target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
			return platforms.NewVyperCompilationConfigWithOptions(target, options)
		},
	}

	// Initialize our platform config generator.
	defaultPlatformConfigGenerator = make(map[string]platformConfigGenerator)

	// Generate each type of interface to create a mapping for their platform identifiers.
	for _, generator := range generators {
		// Generate a probe config to obtain the platform id and priority for it.
		platformConfig := generator(".", nil)
		platformId := platformConfig.Platform()

		// If this platform already exists in our mapping, panic. Each platform should have a unique identifier.
		if _, platformIdExists := defaultPlatformConfigGenerator[platformId]; platformIdExists {
			panic(fmt.Errorf("the compilation platform '%s' is registered with more than one provider", platformId))
		}

		// Add this entry to our mapping and descriptor list.
		defaultPlatformConfigGenerator[platformId] = generator
		platformDescriptors = append(platformDescriptors, PlatformDescriptor{
			Name:     platformId,
			Priority: platformConfig.Priority(),
		})
	}

	// Order descriptors by detection priority, name-sorted within a priority tie.
	sort.Slice(platformDescriptors, func(i, j int) bool {
		if platformDescriptors[i].Priority != platformDescriptors[j].Priority {
			return platformDescriptors[i].Priority < platformDescriptors[j].Priority
		}
		return platformDescriptors[i].Name < platformDescriptors[j].Name
	})
}

// PlatformDescriptors returns every registered platform with its detection priority, ordered the way detection
// probes them.
func PlatformDescriptors() []PlatformDescriptor {
	descriptors := make([]PlatformDescriptor, len(platformDescriptors))
	copy(descriptors, platformDescriptors)
	return descriptors
}

// GetSupportedCompilationPlatforms obtains a list of strings which represent platform identifiers supported by
// methods in this package, ordered by detection priority.
func GetSupportedCompilationPlatforms() []string {
	platformIds := make([]string, len(platformDescriptors))
	for i, descriptor := range platformDescriptors {
		platformIds[i] = descriptor.Name
	}
	return platformIds
}

// IsSupportedCompilationPlatform returns a boolean status indicating if a platform identifier is supported within
// this package. Identifiers match case-insensitively.
func IsSupportedCompilationPlatform(platform string) bool {
	_, ok := defaultPlatformConfigGenerator[strings.ToLower(platform)]
	return ok
}

// GetDefaultPlatformConfig obtains a PlatformConfig for the provided platform, built for the given target with the
// given options. It returns nil if the platform identifier is not supported.
func GetDefaultPlatformConfig(platform string, target string, options *platforms.PlatformOptions) platforms.PlatformConfig {
	generator, ok := defaultPlatformConfigGenerator[strings.ToLower(platform)]
	if !ok {
		return nil
	}
	return generator(target, options)
}
