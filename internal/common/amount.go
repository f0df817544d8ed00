package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// SOLDecimals is the lamport precision of the native currency.
	SOLDecimals = 9
)

// LamportsToSOL converts lamports to a SOL string without float precision loss
func LamportsToSOL(lamports uint64) string {
	return FormatAmount(lamports, SOLDecimals)
}

// SOLToLamports converts a SOL string to lamports without float precision loss
func SOLToLamports(sol string) (uint64, error) {
	return ParseAmount(sol, SOLDecimals)
}

// FormatAmount converts integer base units to a decimal string by inserting
// the decimal point. Example: FormatAmount(24981836, 9) = "0.024981836"
func FormatAmount(value uint64, decimals int) string {
	s := fmt.Sprintf("%d", value)

	// Pad with leading zeros if needed
	for len(s) <= decimals {
		s = "0" + s
	}

	if decimals == 0 {
		return s
	}
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// ParseAmount converts a decimal string to integer base units by removing the
// decimal point. Fractional digits beyond the asset's precision are rejected
// rather than truncated: silently dropping value is not acceptable for
// money movement. Example: ParseAmount("0.024981836", 9) = 24981836
func ParseAmount(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}

	parts := strings.Split(s, ".")

	if len(parts) == 1 {
		// No decimal point - multiply by 10^decimals
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}
		for i := 0; i < decimals; i++ {
			if n > (1<<64-1)/10 {
				return 0, fmt.Errorf("amount overflows base units")
			}
			n *= 10
		}
		return n, nil
	}

	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := parts[1]
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		return 0, fmt.Errorf("invalid decimal format")
	}

	if len(frac) > decimals {
		return 0, fmt.Errorf("amount has more than %d decimal places", decimals)
	}
	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	}

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return 0, nil
	}
	return strconv.ParseUint(combined, 10, 64)
}

// CompareAmounts compares two decimal string amounts at the given precision
// without float precision loss.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareAmounts(a, b string, decimals int) (int, error) {
	aVal, err := ParseAmount(a, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := ParseAmount(b, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	if aVal < bVal {
		return -1, nil
	}
	if aVal > bVal {
		return 1, nil
	}
	return 0, nil
}
