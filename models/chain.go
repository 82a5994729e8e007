package models

import (
	"fmt"
	"sort"
)

// OptionSide is the normalized call or put half of a strike.
type OptionSide struct {
	OI        float64 `json:"oi"`
	ChangeOI  float64 `json:"change_oi"`
	Volume    float64 `json:"volume"`
	Value     float64 `json:"value"`
	IV        float64 `json:"iv"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	PrevClose float64 `json:"prev_close"`
	LastPrice float64 `json:"last_price"`
}

// IsZero reports whether the side carries no data at all.
func (s OptionSide) IsZero() bool {
	return s == OptionSide{}
}

type StrikeRow struct {
	Strike int        `json:"strike"`
	Call   OptionSide `json:"call"`
	Put    OptionSide `json:"put"`
}

// OptionChainTable holds one row per strike, ascending by strike.
type OptionChainTable []StrikeRow

// Window is a slice of the chain around the ATM strike, descending by strike.
type Window []StrikeRow

// SortDescending orders the window by strike, highest first.
func (w Window) SortDescending() {
	sort.SliceStable(w, func(i, j int) bool { return w[i].Strike > w[j].Strike })
}

// OptionType names a side the way the quote-derivative endpoint does.
type OptionType string

const (
	Call OptionType = "Call"
	Put  OptionType = "Put"
)

// Side returns the call or put half of the row.
func (r StrikeRow) Side(t OptionType) OptionSide {
	if t == Put {
		return r.Put
	}
	return r.Call
}

// StrategyLabel classifies a strike side by its price and OI movement.
type StrategyLabel int

const (
	NotApplicable StrategyLabel = iota
	LongBuildup
	ShortBuildup
	ShortCovering
	LongUnwinding
	ShortCoveringNoOIChange
	LongUnwindingNoOIChange
)

var labelNames = [...]string{
	NotApplicable:           "NotApplicable",
	LongBuildup:             "LongBuildup",
	ShortBuildup:            "ShortBuildup",
	ShortCovering:           "ShortCovering",
	LongUnwinding:           "LongUnwinding",
	ShortCoveringNoOIChange: "ShortCoveringNoOIChange",
	LongUnwindingNoOIChange: "LongUnwindingNoOIChange",
}

var labelDisplay = [...]string{
	NotApplicable:           "N/A",
	LongBuildup:             "Long Buildup",
	ShortBuildup:            "Short Buildup",
	ShortCovering:           "Short Covering",
	LongUnwinding:           "Long Unwinding",
	ShortCoveringNoOIChange: "Short Covering (no OI change)",
	LongUnwindingNoOIChange: "Long Unwinding (no OI change)",
}

func (l StrategyLabel) valid() bool {
	return l >= NotApplicable && l <= LongUnwindingNoOIChange
}

func (l StrategyLabel) String() string {
	if !l.valid() {
		return fmt.Sprintf("StrategyLabel(%d)", int(l))
	}
	return labelNames[l]
}

// Display is the human-readable label for reports.
func (l StrategyLabel) Display() string {
	if !l.valid() {
		return labelDisplay[NotApplicable]
	}
	return labelDisplay[l]
}

func (l StrategyLabel) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, fmt.Errorf("invalid strategy label %d", int(l))
	}
	return []byte(labelNames[l]), nil
}

func (l *StrategyLabel) UnmarshalText(text []byte) error {
	for i, name := range labelNames {
		if name == string(text) {
			*l = StrategyLabel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown strategy label %q", text)
}
