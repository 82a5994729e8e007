package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageNoData is set on results whose upstream data could not be used.
const MessageNoData = "no data"

// SideView is an OptionSide annotated with its price change and label.
type SideView struct {
	OptionSide
	PriceChange float64       `json:"price_change"`
	Strategy    StrategyLabel `json:"strategy"`
}

type WindowRow struct {
	Strike int      `json:"strike"`
	Call   SideView `json:"call"`
	Put    SideView `json:"put"`
}

// VolumeRecord is one side of one strike in the high-volume ranking.
type VolumeRecord struct {
	Rank        int           `json:"rank"`
	Strike      int           `json:"strike"`
	Type        OptionType    `json:"type"`
	Volume      float64       `json:"volume"`
	OI          float64       `json:"oi"`
	ChangeOI    float64       `json:"change_oi"`
	LTP         float64       `json:"ltp"`
	IV          float64       `json:"iv"`
	Open        float64       `json:"open"`
	High        float64       `json:"high"`
	Low         float64       `json:"low"`
	Close       float64       `json:"close"`
	Value       float64       `json:"value"`
	PriceChange float64       `json:"price_change"`
	Strategy    StrategyLabel `json:"strategy"`
}

// Summary carries chain-wide totals and put/call ratios.
type Summary struct {
	Time       string  `json:"time"`
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	CallVolume float64 `json:"call_volume"`
	PutVolume  float64 `json:"put_volume"`
	VolumeDiff float64 `json:"volume_diff"`
	Trend      float64 `json:"trend"`
	PCROI      Figure  `json:"pcr_oi"`
	PCRVolume  Figure  `json:"pcr_volume"`
}

// PairAnalysis describes the call/put pair at one strike with its
// break-even points.
type PairAnalysis struct {
	Found      bool    `json:"found"`
	Strike     int     `json:"strike"`
	CallClose  float64 `json:"call_close"`
	PutClose   float64 `json:"put_close"`
	CallValue  float64 `json:"call_value"`
	PutValue   float64 `json:"put_value"`
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	BEP1       Figure  `json:"bep1"`
	BEP2       Figure  `json:"bep2"`
	BEP3       Figure  `json:"bep3"`
	BEP4       Figure  `json:"bep4"`
	Message    string  `json:"message,omitempty"`
	TotalOI    float64 `json:"total_oi"`
	TotalValue float64 `json:"total_value"`
}

type LTPMatch struct {
	Strike     int     `json:"strike"`
	Time       string  `json:"time"`
	CallLTP    float64 `json:"call_ltp"`
	PutLTP     float64 `json:"put_ltp"`
	TotalLTP   float64 `json:"total_ltp"`
	Difference float64 `json:"difference"`
}

type LTPSimilarity struct {
	Message string     `json:"message,omitempty"`
	Matches []LTPMatch `json:"matches"`
	Closest *LTPMatch  `json:"closest,omitempty"`
}

// HighVolumeAnalysis summarises the ranking: which sides are missing,
// where the OI concentrates and the range implied by the busiest strikes.
type HighVolumeAnalysis struct {
	Message      string   `json:"message,omitempty"`
	Expiry       string   `json:"expiry"`
	MissingPairs []string `json:"missing_pairs"`
	CallCount    int      `json:"call_count"`
	PutCount     int      `json:"put_count"`
	MaxStrike    int      `json:"max_strike"`
	CallOI       float64  `json:"call_oi"`
	PutOI        float64  `json:"put_oi"`
	TotalOI      float64  `json:"total_oi"`
	CallLTP      float64  `json:"call_ltp"`
	PutLTP       float64  `json:"put_ltp"`
	CallValue    float64  `json:"call_value"`
	PutValue     float64  `json:"put_value"`
	PEP1         Figure   `json:"pep1"`
	PEP2         Figure   `json:"pep2"`
	PEPUp        Figure   `json:"pep_up"`
	PEPDown      Figure   `json:"pep_down"`
	RangeUp      Figure   `json:"range_up"`
	RangeDown    Figure   `json:"range_down"`
	Range        Figure   `json:"range"`
}

// PremiumEstimate is the Black-Scholes value of the ATM strike from the
// upstream implied volatility.
type PremiumEstimate struct {
	Strike        int     `json:"strike"`
	YearsToExpiry float64 `json:"years_to_expiry"`
	CallIV        float64 `json:"call_iv"`
	PutIV         float64 `json:"put_iv"`
	Call          Figure  `json:"call"`
	Put           Figure  `json:"put"`
}

// Result is everything one pipeline cycle produces for a symbol. A result
// with a Message but no rows means the upstream data was unavailable.
type Result struct {
	ID                 uuid.UUID          `json:"id"`
	Symbol             string             `json:"symbol"`
	Expiry             string             `json:"expiry"`
	ExpiryDates        []string           `json:"expiry_dates"`
	Underlying         float64            `json:"underlying"`
	Timestamp          string             `json:"timestamp"`
	MarketStatus       string             `json:"market_status"`
	Message            string             `json:"message,omitempty"`
	Window             []WindowRow        `json:"window"`
	WindowWarning      string             `json:"window_warning,omitempty"`
	HighVolume         []VolumeRecord     `json:"high_volume"`
	Summary            Summary            `json:"summary"`
	MaxOI              PairAnalysis       `json:"max_oi"`
	MaxValue           PairAnalysis       `json:"max_value"`
	LTPSimilarity      LTPSimilarity      `json:"ltp_similarity"`
	HighVolumeAnalysis HighVolumeAnalysis `json:"high_volume_analysis"`
	Premium            PremiumEstimate    `json:"premium"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// NewResult returns an empty result whose figures are all N/A and whose
// collections are empty rather than nil.
func NewResult(symbol string, now time.Time) *Result {
	return &Result{
		ID:            uuid.New(),
		Symbol:        symbol,
		ExpiryDates:   []string{},
		Window:        []WindowRow{},
		HighVolume:    []VolumeRecord{},
		LTPSimilarity: LTPSimilarity{Matches: []LTPMatch{}},
		HighVolumeAnalysis: HighVolumeAnalysis{
			MissingPairs: []string{},
		},
		GeneratedAt: now,
	}
}

// Unavailable builds the result returned when a cycle has no usable data.
func Unavailable(symbol string, now time.Time, reason string) *Result {
	r := NewResult(symbol, now)
	r.Message = MessageNoData
	if reason != "" {
		r.Message = MessageNoData + ": " + reason
	}
	return r
}

// Available reports whether the result carries data.
func (r *Result) Available() bool {
	return r != nil && r.Message == ""
}
