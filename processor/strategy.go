package processor

import "optionflow/models"

// Classify maps a price change and an OI change to a strategy label. The
// no-OI-change labels apply only when oiChange is exactly zero.
func Classify(priceChange, oiChange float64) models.StrategyLabel {
	switch {
	case priceChange > 0:
		switch {
		case oiChange > 0:
			return models.LongBuildup
		case oiChange < 0:
			return models.ShortCovering
		case oiChange == 0:
			return models.ShortCoveringNoOIChange
		}
	case priceChange < 0:
		switch {
		case oiChange > 0:
			return models.ShortBuildup
		case oiChange < 0:
			return models.LongUnwinding
		case oiChange == 0:
			return models.LongUnwindingNoOIChange
		}
	}
	return models.NotApplicable
}

// PriceChange measures a side's move against the best reference available:
// previous close, then open, then the close itself against the last trade.
// The difference is exact and unrounded; round only for display.
func PriceChange(s models.OptionSide) float64 {
	switch {
	case s.PrevClose != 0:
		return diff(s.Close, s.PrevClose)
	case s.Open != 0:
		return diff(s.Close, s.Open)
	case s.Close != 0:
		return diff(s.LastPrice, s.Close)
	}
	return 0
}

// Annotate attaches price change and strategy label to every window row.
func Annotate(window models.Window) []models.WindowRow {
	rows := make([]models.WindowRow, 0, len(window))
	for _, r := range window {
		rows = append(rows, models.WindowRow{
			Strike: r.Strike,
			Call:   annotateSide(r.Call),
			Put:    annotateSide(r.Put),
		})
	}
	return rows
}

func annotateSide(s models.OptionSide) models.SideView {
	pc := PriceChange(s)
	return models.SideView{OptionSide: s, PriceChange: round2(pc), Strategy: Classify(pc, s.ChangeOI)}
}
