package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor"
)

// ContractMetadata is the decoded form of the CBOR-encoded structure the Solidity compiler appends to deployed
// bytecode (unless explicitly directed not to). Keys are normalized to lowercase; recognized values are rendered to
// display strings, unrecognized ones are kept as decoded.
// Reference: https://docs.soliditylang.org/en/latest/metadata.html
type ContractMetadata map[string]any

// splitBytecodeMetadata splits hex bytecode into the runtime code part and the metadata trailer (CBOR payload plus
// the two trailing length bytes). The final two bytes of the bytecode hold the big-endian length of the CBOR block;
// a length that does not fit the remaining bytecode means no metadata is present.
func splitBytecodeMetadata(bytecodeHex string) (code string, trailer string, ok bool) {
	normalized := strings.TrimPrefix(strings.TrimPrefix(bytecodeHex, "0x"), "0X")
	if len(normalized) < 4 || len(normalized)%2 != 0 {
		return bytecodeHex, "", false
	}

	length, err := strconv.ParseUint(normalized[len(normalized)-4:], 16, 32)
	if err != nil {
		return bytecodeHex, "", false
	}
	trailerChars := int(length)*2 + 4
	if trailerChars > len(normalized) {
		return bytecodeHex, "", false
	}

	split := len(normalized) - trailerChars
	return normalized[:split], normalized[split:], true
}

// ExtractContractMetadata decodes the metadata trailer of deployed hex bytecode and returns it. If no well-formed
// trailer is present, nil is returned; failure to decode is never an error, as pre-0.4.7 compilers and other
// toolchains emit bytecode without one.
func ExtractContractMetadata(bytecodeHex string) ContractMetadata {
	_, trailer, ok := splitBytecodeMetadata(bytecodeHex)
	if !ok {
		return nil
	}

	payload, err := hex.DecodeString(trailer[:len(trailer)-4])
	if err != nil {
		return nil
	}

	var decoded map[string]any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		return nil
	}

	metadata := make(ContractMetadata, len(decoded))
	for key, value := range decoded {
		metadata[strings.ToLower(key)] = renderMetadataValue(strings.ToLower(key), value)
	}
	return metadata
}

// RemoveContractMetadata returns hex bytecode with its metadata trailer stripped. Bytecode without a well-formed
// trailer is returned unchanged.
func RemoveContractMetadata(bytecodeHex string) string {
	code, _, ok := splitBytecodeMetadata(bytecodeHex)
	if !ok {
		return bytecodeHex
	}
	// Only strip when the trailer actually decodes as CBOR, so random data ending in small numbers is not truncated.
	if ExtractContractMetadata(bytecodeHex) == nil {
		return bytecodeHex
	}
	return code
}

// MetadataTrailer returns the raw hex metadata trailer of deployed bytecode, including the two length bytes, such
// that bytecode == RemoveContractMetadata(bytecode) + MetadataTrailer(bytecode). Returns an empty string when no
// trailer is present.
func MetadataTrailer(bytecodeHex string) string {
	_, trailer, ok := splitBytecodeMetadata(bytecodeHex)
	if !ok || ExtractContractMetadata(bytecodeHex) == nil {
		return ""
	}
	return trailer
}

// renderMetadataValue converts a decoded CBOR metadata value into its display form for the recognized keys: hash
// digests become hex (multibase base16 for ipfs), the solc version becomes a dotted string, and everything else is
// kept as decoded, with byte strings hex-encoded for printability.
func renderMetadataValue(key string, value any) any {
	bytesValue, isBytes := value.([]byte)
	switch key {
	case "ipfs":
		if isBytes {
			// Multibase base16 rendering; the leading f is the base identifier.
			return "f" + hex.EncodeToString(bytesValue)
		}
	case "bzzr0", "bzzr1":
		if isBytes {
			return hex.EncodeToString(bytesValue)
		}
	case "solc":
		if isBytes {
			if len(bytesValue) != 3 {
				return "unknown"
			}
			return fmt.Sprintf("%d.%d.%d", bytesValue[0], bytesValue[1], bytesValue[2])
		}
	case "experimental":
		return value
	}
	if isBytes {
		return hex.EncodeToString(bytesValue)
	}
	return value
}
