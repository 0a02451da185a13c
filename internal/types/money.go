package types

import (
	"fmt"
	"strings"
)

// FormatAmount renders an amount in minor currency units the way the payment
// logs and receipts display it, e.g. 2500 "usd" -> "$25.00 USD".
//
// Every currency is rendered with two decimal places; zero-decimal currencies
// are not special-cased because the site only charges in USD.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
	}
	return fmt.Sprintf("%s$%d.%02d %s", sign, minor/100, minor%100, cur)
}
