package processor

import (
	"errors"
	"math"

	"optionflow/models"
)

var ErrInvalidPricingInput = errors.New("spot, strike and volatility must be positive")

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// BlackScholes prices a European option. vol and rate are annualised
// fractions (0.15 for 15%), years is the time to expiry. At expiry the
// intrinsic value is returned.
func BlackScholes(kind models.OptionType, spot, strike, years, rate, vol float64) (float64, error) {
	if spot <= 0 || strike <= 0 || vol <= 0 {
		return 0, ErrInvalidPricingInput
	}
	if years <= 0 {
		if kind == models.Put {
			return math.Max(strike-spot, 0), nil
		}
		return math.Max(spot-strike, 0), nil
	}

	sqrtT := math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate+0.5*vol*vol)*years) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	discount := strike * math.Exp(-rate*years)

	if kind == models.Put {
		return discount*normCDF(-d2) - spot*normCDF(-d1), nil
	}
	return spot*normCDF(d1) - discount*normCDF(d2), nil
}

// TheoreticalPremiums prices both sides of row from their IV.
// IV is in percent as the upstream reports it. Sides without IV are N/A.
func TheoreticalPremiums(row models.StrikeRow, spot, years, rate float64) (call, put models.Figure) {
	price := func(kind models.OptionType, iv float64) models.Figure {
		v, err := BlackScholes(kind, spot, float64(row.Strike), years, rate, iv/100)
		if err != nil {
			return models.NA()
		}
		return models.Some(round2(v))
	}
	return price(models.Call, row.Call.IV), price(models.Put, row.Put.IV)
}
