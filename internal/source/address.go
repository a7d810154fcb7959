package source

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a hex address and returns its checksummed form.
// An empty input is returned unchanged.
func NormalizeAddress(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input).Hex(), nil
}

// IsNativePlaceholder reports whether address is the native asset placeholder.
func IsNativePlaceholder(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
}
