package driver

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/bottlechain/chaincore/pkg/helpers"
	"github.com/ethereum/go-ethereum/common"
)

// ERC-20 function selectors (first 4 bytes of the keccak of the signature).
const (
	selName        = "0x06fdde03" // name()
	selSymbol      = "0x95d89b41" // symbol()
	selDecimals    = "0x313ce567" // decimals()
	selTotalSupply = "0x18160ddd" // totalSupply()
	selBalanceOf   = "0x70a08231" // balanceOf(address)
)

// EncodeCall builds eth_call data from a selector and 32-byte argument words.
func EncodeCall(selector string, words ...[]byte) string {
	var b strings.Builder
	b.WriteString(selector)
	for _, w := range words {
		b.WriteString(hex.EncodeToString(helpers.PadLeft(w, 32)))
	}
	return b.String()
}

// AddressWord encodes an address as a 32-byte ABI word.
func AddressWord(address string) []byte {
	return helpers.PadLeft(common.HexToAddress(address).Bytes(), 32)
}

// AmountWord encodes an unsigned integer as a 32-byte ABI word.
func AmountWord(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return helpers.PadLeft(v.Bytes(), 32)
}

// WordAt returns the i-th 32-byte word of an ABI-encoded return value.
func WordAt(data []byte, i int) []byte {
	start := i * 32
	if start+32 > len(data) {
		return nil
	}
	return data[start : start+32]
}

// DecodeABIString decodes a string return value. Standard tokens return a
// dynamic string (offset, length, bytes); a few old contracts return a
// right-padded bytes32 instead, handled as a fallback.
func DecodeABIString(data []byte) string {
	if len(data) == 32 {
		return strings.TrimRight(string(data), "\x00")
	}
	if len(data) < 64 {
		return ""
	}

	offset := new(big.Int).SetBytes(WordAt(data, 0)).Int64()
	if offset < 0 || offset+32 > int64(len(data)) {
		return ""
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Int64()
	start := offset + 32
	if length < 0 || start+length > int64(len(data)) {
		return ""
	}
	return string(data[start : start+length])
}
