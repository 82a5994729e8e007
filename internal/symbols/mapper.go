package symbols

import "strings"

// indices lists the symbols served by the index option-chain endpoint.
var indices = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
	"NIFTYNXT50": true,
}

// aliases maps common display names to the upstream symbol.
var aliases = map[string]string{
	"NIFTY 50":          "NIFTY",
	"NIFTY50":           "NIFTY",
	"NIFTY BANK":        "BANKNIFTY",
	"NIFTYBANK":         "BANKNIFTY",
	"BANK NIFTY":        "BANKNIFTY",
	"NIFTY FIN SERVICE": "FINNIFTY",
	"NIFTY MID SELECT":  "MIDCPNIFTY",
	"NIFTY NEXT 50":     "NIFTYNXT50",
}

// Normalize upper-cases sym, trims it and resolves display-name aliases.
func Normalize(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	sym = strings.Join(strings.Fields(sym), " ")
	if canonical, ok := aliases[sym]; ok {
		return canonical
	}
	return sym
}

// IsIndex reports whether sym is an index rather than a single stock.
func IsIndex(sym string) bool {
	return indices[Normalize(sym)]
}
