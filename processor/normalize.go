package processor

import (
	"math"
	"sort"
	"strings"

	"optionflow/models"
)

type quoteKey struct {
	strike int
	kind   models.OptionType
	expiry string
}

// quoteFields are the per-contract values only the quote-derivative
// endpoint carries.
type quoteFields struct {
	open      float64
	high      float64
	low       float64
	close     float64
	prevClose float64
	value     float64
}

// IndexQuotes keys the option contracts of a quote-derivative payload by
// strike, side and expiry. Entries without metadata and non-option
// instruments are skipped.
func IndexQuotes(q *models.RawQuoteDerivative) map[quoteKey]quoteFields {
	out := make(map[quoteKey]quoteFields)
	if q == nil {
		return out
	}
	for _, stock := range q.Stocks {
		md := stock.Metadata
		if md == nil {
			continue
		}
		kind := models.OptionType(md.OptionType)
		if kind != models.Call && kind != models.Put {
			continue
		}
		key := quoteKey{strike: strikeOf(md.StrikePrice.Float()), kind: kind, expiry: md.ExpiryDate}
		if _, dup := out[key]; dup {
			continue
		}
		prev := finite(md.PrevClose.Float())
		if prev == 0 {
			prev = finite(md.OpenPrice.Float())
		}
		out[key] = quoteFields{
			open:      finite(md.OpenPrice.Float()),
			high:      finite(md.HighPrice.Float()),
			low:       finite(md.LowPrice.Float()),
			close:     finite(md.LastPrice.Float()),
			prevClose: prev,
			value:     nonNegative(md.TotalTurnover.Float()),
		}
	}
	return out
}

// Normalize flattens the filtered option chain into one row per strike,
// ascending, joining OHLC and turnover from quotes when available. A
// payload without a filtered section yields an empty table.
func Normalize(chain *models.RawOptionChain, quotes *models.RawQuoteDerivative, expiry string) models.OptionChainTable {
	if chain == nil || chain.Filtered == nil || len(chain.Filtered.Data) == 0 {
		return models.OptionChainTable{}
	}

	fallbackExpiry := expiry
	if fallbackExpiry == "" && len(chain.Records.ExpiryDates) > 0 {
		fallbackExpiry = chain.Records.ExpiryDates[0]
	}
	index := IndexQuotes(quotes)

	seen := make(map[int]bool, len(chain.Filtered.Data))
	table := make(models.OptionChainTable, 0, len(chain.Filtered.Data))
	for _, entry := range chain.Filtered.Data {
		strike := strikeOf(entry.StrikePrice.Float())
		if seen[strike] {
			continue
		}
		seen[strike] = true

		rowExpiry := firstNonEmpty(entry.ExpiryDate, entry.CE.Record.ExpiryDate, entry.PE.Record.ExpiryDate, fallbackExpiry)
		callQuote, callOK := index[quoteKey{strike, models.Call, rowExpiry}]
		putQuote, putOK := index[quoteKey{strike, models.Put, rowExpiry}]

		table = append(table, models.StrikeRow{
			Strike: strike,
			Call:   buildSide(entry.CE, callQuote, callOK),
			Put:    buildSide(entry.PE, putQuote, putOK),
		})
	}

	sort.SliceStable(table, func(i, j int) bool { return table[i].Strike < table[j].Strike })
	return table
}

func buildSide(side models.OptionalSide, q quoteFields, quoted bool) models.OptionSide {
	if !side.Present {
		return models.OptionSide{}
	}
	r := side.Record
	s := models.OptionSide{
		OI:        nonNegative(r.OpenInterest.Float()),
		ChangeOI:  finite(r.ChangeInOpenInterest.Float()),
		Volume:    nonNegative(r.TotalTradedVolume.Float()),
		Value:     nonNegative(r.TotalTurnover.Float()),
		IV:        nonNegative(r.ImpliedVolatility.Float()),
		Open:      finite(r.OpenPrice.Float()),
		High:      finite(r.HighPrice.Float()),
		Low:       finite(r.LowPrice.Float()),
		Close:     finite(r.ClosePrice.Float()),
		PrevClose: finite(r.PrevClose.Float()),
		LastPrice: finite(r.LastPrice.Float()),
	}

	if quoted {
		s.Open, s.High, s.Low = q.open, q.high, q.low
		s.Close, s.PrevClose, s.Value = q.close, q.prevClose, q.value
		return s
	}

	// Without a quote the chain record still knows the day's change.
	if s.Close == 0 {
		s.Close = s.LastPrice
	}
	if change := finite(r.Change.Float()); s.PrevClose == 0 && change != 0 && s.LastPrice != 0 {
		s.PrevClose = s.LastPrice - change
	}
	return s
}

func strikeOf(v float64) int {
	return int(math.Round(finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNegative(v float64) float64 {
	v = finite(v)
	if v < 0 {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
