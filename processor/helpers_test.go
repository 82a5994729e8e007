package processor

import (
	"optionflow/models"
)

// ladder builds an ascending table with one row every step from lo to hi.
func ladder(lo, hi, step int) models.OptionChainTable {
	var table models.OptionChainTable
	for k := lo; k <= hi; k += step {
		table = append(table, models.StrikeRow{
			Strike: k,
			Call:   models.OptionSide{OI: float64(k - lo), Volume: 10, LastPrice: 1},
			Put:    models.OptionSide{OI: float64(hi - k), Volume: 20, LastPrice: 2},
		})
	}
	return table
}

func side(rec models.SideRecord) models.OptionalSide {
	return models.OptionalSide{Present: true, Record: rec}
}
