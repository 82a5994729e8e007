package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"optionflow/models"
)

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(finite(v))
}

func round2(v float64) float64 {
	return dec(v).Round(2).InexactFloat64()
}

// diff is a-b computed in decimal.
func diff(a, b float64) float64 {
	return dec(a).Sub(dec(b)).InexactFloat64()
}

// ratio2 is num/den rounded to two places, or N/A for a zero denominator.
func ratio2(num, den float64) models.Figure {
	if den == 0 {
		return models.NA()
	}
	return models.Some(dec(num).Div(dec(den)).Round(2).InexactFloat64())
}

// timeOf returns the clock part of an upstream "02-Jan-2006 15:04:05" stamp.
func timeOf(ts string) string {
	if _, clock, ok := strings.Cut(strings.TrimSpace(ts), " "); ok {
		return clock
	}
	return ts
}

// ComputeSummary totals OI and volume over the whole chain and derives the
// put/call ratios.
func ComputeSummary(table models.OptionChainTable, timestamp string) models.Summary {
	var callOI, putOI, callVol, putVol decimal.Decimal
	for _, r := range table {
		callOI = callOI.Add(dec(r.Call.OI))
		putOI = putOI.Add(dec(r.Put.OI))
		callVol = callVol.Add(dec(r.Call.Volume))
		putVol = putVol.Add(dec(r.Put.Volume))
	}
	s := models.Summary{
		Time:       timeOf(timestamp),
		CallOI:     callOI.InexactFloat64(),
		PutOI:      putOI.InexactFloat64(),
		CallVolume: callVol.InexactFloat64(),
		PutVolume:  putVol.InexactFloat64(),
		Trend:      putOI.Sub(callOI).InexactFloat64(),
		VolumeDiff: putVol.Sub(callVol).InexactFloat64(),
	}
	s.PCROI = ratio2(s.PutOI, s.CallOI)
	s.PCRVolume = ratio2(s.PutVolume, s.CallVolume)
	return s
}

// AnalyzeMaxOIPair analyses the strike with the largest combined OI.
func AnalyzeMaxOIPair(window models.Window) models.PairAnalysis {
	return analyzePair(window, func(r models.StrikeRow) decimal.Decimal {
		return dec(r.Call.OI).Add(dec(r.Put.OI))
	})
}

// AnalyzeMaxValuePair analyses the strike with the largest combined turnover.
func AnalyzeMaxValuePair(window models.Window) models.PairAnalysis {
	return analyzePair(window, func(r models.StrikeRow) decimal.Decimal {
		return dec(r.Call.Value).Add(dec(r.Put.Value))
	})
}

func analyzePair(window models.Window, score func(models.StrikeRow) decimal.Decimal) models.PairAnalysis {
	if len(window) == 0 {
		return models.PairAnalysis{Message: "window is empty", BEP1: models.NA(), BEP2: models.NA(), BEP3: models.NA(), BEP4: models.NA()}
	}

	best := 0
	bestScore := score(window[0])
	for i := 1; i < len(window); i++ {
		if s := score(window[i]); s.GreaterThan(bestScore) {
			best, bestScore = i, s
		}
	}
	row := window[best]

	strike := decimal.NewFromInt(int64(row.Strike))
	callClose := dec(row.Call.Close).Round(2)
	putClose := dec(row.Put.Close).Round(2)

	p := models.PairAnalysis{
		Found:      true,
		Strike:     row.Strike,
		CallClose:  callClose.InexactFloat64(),
		PutClose:   putClose.InexactFloat64(),
		CallValue:  round2(row.Call.Value),
		PutValue:   round2(row.Put.Value),
		CallOI:     row.Call.OI,
		PutOI:      row.Put.OI,
		TotalOI:    dec(row.Call.OI).Add(dec(row.Put.OI)).InexactFloat64(),
		TotalValue: dec(row.Call.Value).Add(dec(row.Put.Value)).Round(2).InexactFloat64(),
	}
	p.BEP1, p.BEP2, p.BEP3, p.BEP4 = models.NA(), models.NA(), models.NA(), models.NA()
	if !callClose.IsZero() {
		p.BEP1 = models.Some(callClose.Add(strike).InexactFloat64())
	}
	if !putClose.IsZero() {
		p.BEP2 = models.Some(putClose.Sub(strike).InexactFloat64())
	}
	if !callClose.IsZero() && !putClose.IsZero() {
		both := callClose.Add(putClose)
		p.BEP3 = models.Some(both.Add(strike).InexactFloat64())
		p.BEP4 = models.Some(both.Sub(strike).InexactFloat64())
	}
	return p
}

// RankHighVolume flattens the window into per-side records with non-zero
// volume, busiest first, and keeps the top limit with ranks from 1.
func RankHighVolume(window models.Window, limit int) []models.VolumeRecord {
	records := make([]models.VolumeRecord, 0, 2*len(window))
	for _, r := range window {
		for _, kind := range []models.OptionType{models.Call, models.Put} {
			s := r.Side(kind)
			if s.Volume == 0 {
				continue
			}
			pc := PriceChange(s)
			records = append(records, models.VolumeRecord{
				Strike:      r.Strike,
				Type:        kind,
				Volume:      s.Volume,
				OI:          s.OI,
				ChangeOI:    s.ChangeOI,
				LTP:         s.LastPrice,
				IV:          s.IV,
				Open:        s.Open,
				High:        s.High,
				Low:         s.Low,
				Close:       s.Close,
				Value:       s.Value,
				PriceChange: round2(pc),
				Strategy:    Classify(pc, s.ChangeOI),
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Volume > records[j].Volume })
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	for i := range records {
		records[i].Rank = i + 1
	}
	return records
}

type pairCell struct {
	call, put           bool
	callOI, putOI       float64
	callLTP, putLTP     float64
	callValue, putValue float64
}

// AnalyzeHighVolume summarises a ranking: sides missing from it, the
// strike with the most OI among ranked sides with its pivot levels, and the
// range spanned by the topK busiest sides.
func AnalyzeHighVolume(ranking []models.VolumeRecord, expiry string, topK int) models.HighVolumeAnalysis {
	a := models.HighVolumeAnalysis{
		Expiry:       expiry,
		MissingPairs: []string{},
		PEP1:         models.NA(),
		PEP2:         models.NA(),
		PEPUp:        models.NA(),
		PEPDown:      models.NA(),
		RangeUp:      models.NA(),
		RangeDown:    models.NA(),
		Range:        models.NA(),
	}
	if len(ranking) == 0 {
		a.Message = "no traded volume in window"
		return a
	}

	cells := make(map[int]*pairCell)
	for _, rec := range ranking {
		c, ok := cells[rec.Strike]
		if !ok {
			c = &pairCell{}
			cells[rec.Strike] = c
		}
		if rec.Type == models.Call {
			a.CallCount++
			c.call, c.callOI, c.callLTP, c.callValue = true, rec.OI, rec.LTP, rec.Value
		} else {
			a.PutCount++
			c.put, c.putOI, c.putLTP, c.putValue = true, rec.OI, rec.LTP, rec.Value
		}
	}

	strikes := make([]int, 0, len(cells))
	for k := range cells {
		strikes = append(strikes, k)
	}
	sort.Ints(strikes)

	maxStrike := strikes[0]
	maxOI := decimal.NewFromInt(-1)
	for _, k := range strikes {
		c := cells[k]
		if !c.call {
			a.MissingPairs = append(a.MissingPairs, fmt.Sprintf("%d %s missing", k, models.Call))
		}
		if !c.put {
			a.MissingPairs = append(a.MissingPairs, fmt.Sprintf("%d %s missing", k, models.Put))
		}
		if total := dec(c.callOI).Add(dec(c.putOI)); total.GreaterThan(maxOI) {
			maxStrike, maxOI = k, total
		}
	}

	c := cells[maxStrike]
	callLTP := dec(c.callLTP).Round(2)
	putLTP := dec(c.putLTP).Round(2)
	strike := decimal.NewFromInt(int64(maxStrike))

	a.MaxStrike = maxStrike
	a.CallOI, a.PutOI, a.TotalOI = c.callOI, c.putOI, maxOI.InexactFloat64()
	a.CallLTP, a.PutLTP = callLTP.InexactFloat64(), putLTP.InexactFloat64()
	a.CallValue, a.PutValue = round2(c.callValue), round2(c.putValue)
	a.PEP1 = models.Some(strike.Add(callLTP).InexactFloat64())
	a.PEP2 = models.Some(strike.Sub(putLTP).InexactFloat64())
	a.PEPUp = models.Some(strike.Add(callLTP.Add(putLTP)).InexactFloat64())
	a.PEPDown = models.Some(strike.Sub(callLTP.Add(putLTP)).InexactFloat64())

	a.RangeUp, a.RangeDown, a.Range = EstimateRange(ranking, topK)
	return a
}

// EstimateRange reads the highest call strike and the lowest put strike
// among the topK ranked sides. Range is their difference when both exist.
func EstimateRange(ranking []models.VolumeRecord, topK int) (up, down, span models.Figure) {
	topK = max(topK, 0)
	if topK < len(ranking) {
		ranking = ranking[:topK]
	}
	up, down, span = models.NA(), models.NA(), models.NA()
	for _, rec := range ranking {
		v := float64(rec.Strike)
		switch rec.Type {
		case models.Call:
			if !up.Valid || v > up.Value {
				up = models.Some(v)
			}
		case models.Put:
			if !down.Valid || v < down.Value {
				down = models.Some(v)
			}
		}
	}
	if up.Valid && down.Valid {
		span = models.Some(up.Value - down.Value)
	}
	return up, down, span
}

// CheckLTPSimilarity finds strikes where the call and put last prices are
// both traded and within tolerance of each other. If none are, the closest
// such strike is reported instead.
func CheckLTPSimilarity(window models.Window, timestamp string, tolerance float64) models.LTPSimilarity {
	out := models.LTPSimilarity{Matches: []models.LTPMatch{}}
	if len(window) == 0 {
		out.Message = "window is empty"
		return out
	}

	clock := timeOf(timestamp)
	tol := dec(tolerance)
	var closest *models.LTPMatch
	var closestDiff decimal.Decimal
	for _, r := range window {
		if r.Call.LastPrice == 0 || r.Put.LastPrice == 0 {
			continue
		}
		call, put := dec(r.Call.LastPrice), dec(r.Put.LastPrice)
		d := call.Sub(put).Abs()
		m := models.LTPMatch{
			Strike:     r.Strike,
			Time:       clock,
			CallLTP:    r.Call.LastPrice,
			PutLTP:     r.Put.LastPrice,
			TotalLTP:   call.Add(put).Round(2).InexactFloat64(),
			Difference: d.Round(2).InexactFloat64(),
		}
		if d.LessThanOrEqual(tol) {
			out.Matches = append(out.Matches, m)
		}
		if closest == nil || d.LessThan(closestDiff) {
			mc := m
			closest, closestDiff = &mc, d
		}
	}

	if len(out.Matches) > 0 {
		return out
	}
	out.Message = fmt.Sprintf("no strike has call and put LTP within %s point(s)", tol.String())
	if closest == nil {
		out.Message += "; no strike has both call and put traded"
		return out
	}
	out.Closest = closest
	return out
}
