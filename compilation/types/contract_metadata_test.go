package types

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMetadataTrailer assembles a hex metadata trailer from a hex CBOR payload, appending the big-endian length
// suffix the compiler emits.
func buildMetadataTrailer(payloadHex string) string {
	return payloadHex + fmt.Sprintf("%04x", len(payloadHex)/2)
}

// ipfsMetadataPayload is a CBOR map {"ipfs": <34 bytes>, "solc": 0x000812}, byte-for-byte what solc 0.8.18 appends.
func ipfsMetadataPayload(ipfsHex string) string {
	return "a2" + // map(2)
		"64" + "69706673" + // text(4) "ipfs"
		"5822" + ipfsHex + // bytes(34)
		"64" + "736f6c63" + // text(4) "solc"
		"43" + "000812" // bytes(3) 0.8.18
}

func TestExtractContractMetadataIpfs(t *testing.T) {
	ipfsHex := "1220" + strings.Repeat("ab", 32)
	bytecode := "6080604052" + buildMetadataTrailer(ipfsMetadataPayload(ipfsHex))

	metadata := ExtractContractMetadata(bytecode)
	require.NotNil(t, metadata)
	assert.Equal(t, "0.8.18", metadata["solc"])
	assert.Equal(t, "f"+ipfsHex, metadata["ipfs"])
}

func TestExtractContractMetadataBzzr(t *testing.T) {
	bzzrHex := strings.Repeat("cd", 32)
	// CBOR map {"bzzr0": <32 bytes>}, the solc <= 0.5.8 trailer shape.
	payload := "a1" + "65" + "627a7a7230" + "5820" + bzzrHex
	bytecode := "00" + buildMetadataTrailer(payload)

	metadata := ExtractContractMetadata(bytecode)
	require.NotNil(t, metadata)
	assert.Equal(t, bzzrHex, metadata["bzzr0"])
}

func TestExtractContractMetadataAbsent(t *testing.T) {
	// Plain runtime code without a trailer must not decode.
	assert.Nil(t, ExtractContractMetadata("6080604052600080fd"))
	assert.Nil(t, ExtractContractMetadata(""))
	// A length suffix pointing past the start of the bytecode is treated as no metadata.
	assert.Nil(t, ExtractContractMetadata("00ffff"))
}

// TestMetadataReassembly verifies the stripped code plus the trailer reproduces the original bytecode exactly.
func TestMetadataReassembly(t *testing.T) {
	ipfsHex := "1220" + strings.Repeat("11", 32)
	code := "608060405234801561001057600080fd5b50"
	bytecode := code + buildMetadataTrailer(ipfsMetadataPayload(ipfsHex))

	stripped := RemoveContractMetadata(bytecode)
	trailer := MetadataTrailer(bytecode)
	assert.Equal(t, code, stripped)
	assert.Equal(t, bytecode, stripped+trailer)
}

// TestRemoveContractMetadataNoTrailer verifies bytecode without a decodable trailer is returned unchanged.
func TestRemoveContractMetadataNoTrailer(t *testing.T) {
	bytecode := "6080604052600080fd"
	assert.Equal(t, bytecode, RemoveContractMetadata(bytecode))
	assert.Equal(t, "", MetadataTrailer(bytecode))
}

func TestContractMetadataOnContract(t *testing.T) {
	ipfsHex := "1220" + strings.Repeat("22", 32)
	contract := &CompiledContract{
		Name:            "Token",
		InitBytecode:    "6080",
		RuntimeBytecode: "6001" + buildMetadataTrailer(ipfsMetadataPayload(ipfsHex)),
	}

	metadata := contract.Metadata()
	require.NotNil(t, metadata)
	assert.Equal(t, "0.8.18", metadata["solc"])

	contract.StripMetadata()
	assert.Equal(t, "6001", contract.RuntimeBytecode)
}
