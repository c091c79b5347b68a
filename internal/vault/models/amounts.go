package models

import (
	"strconv"
	"strings"
)

// FormatSUI renders a MIST amount as a decimal SUI string for audit
// records, matching the original mirror format ("0.001", "20").
func FormatSUI(amount uint64) string {
	whole := amount / MISTPerSUI
	frac := amount % MISTPerSUI
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fracStr := strings.TrimRight(strconv.FormatUint(MISTPerSUI+frac, 10)[1:], "0")
	return strconv.FormatUint(whole, 10) + "." + fracStr
}
