package processor

import (
	"math"
	"testing"

	"optionflow/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		price, oi float64
		want      models.StrategyLabel
	}{
		{5, 1000, models.LongBuildup},
		{-5, 1000, models.ShortBuildup},
		{5, -1000, models.ShortCovering},
		{-5, -1000, models.LongUnwinding},
		{5, 0, models.ShortCoveringNoOIChange},
		{-3, 0, models.LongUnwindingNoOIChange},
		{0, 500, models.NotApplicable},
		{0, -500, models.NotApplicable},
		{0, 0, models.NotApplicable},
		{0.01, 1e-9, models.LongBuildup},
	}
	for _, c := range cases {
		if got := Classify(c.price, c.oi); got != c.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", c.price, c.oi, got, c.want)
		}
	}
}

func TestClassifyTotal(t *testing.T) {
	values := []float64{math.Inf(-1), -1, 0, 1, math.Inf(1), math.NaN()}
	for _, p := range values {
		for _, oi := range values {
			got := Classify(p, oi)
			if got < models.NotApplicable || got > models.LongUnwindingNoOIChange {
				t.Fatalf("Classify(%v, %v) returned out of range label %d", p, oi, got)
			}
		}
		if got := Classify(0, p); got != models.NotApplicable {
			t.Fatalf("Classify(0, %v) = %s", p, got)
		}
	}
}

func TestPriceChangeFallback(t *testing.T) {
	cases := []struct {
		name string
		side models.OptionSide
		want float64
	}{
		{"previous close", models.OptionSide{Close: 105.5, PrevClose: 100, Open: 90, LastPrice: 104}, 5.5},
		{"open", models.OptionSide{Close: 95, Open: 100, LastPrice: 96}, -5},
		{"last price", models.OptionSide{Close: 50, LastPrice: 52.25}, 2.25},
		{"nothing", models.OptionSide{LastPrice: 10}, 0},
		{"decimal exact", models.OptionSide{Close: 100.3, PrevClose: 100.1}, 0.2},
	}
	for _, c := range cases {
		if got := PriceChange(c.side); got != c.want {
			t.Errorf("%s: PriceChange = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAnnotate(t *testing.T) {
	window := models.Window{{
		Strike: 22250,
		Call:   models.OptionSide{Close: 110, PrevClose: 100, ChangeOI: 200},
		Put:    models.OptionSide{Close: 90, PrevClose: 100, ChangeOI: 0},
	}}
	rows := Annotate(window)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Call.Strategy != models.LongBuildup || rows[0].Call.PriceChange != 10 {
		t.Fatalf("unexpected call annotation: %+v", rows[0].Call)
	}
	if rows[0].Put.Strategy != models.LongUnwindingNoOIChange {
		t.Fatalf("unexpected put annotation: %+v", rows[0].Put)
	}
}

func TestAnnotateSubTickChange(t *testing.T) {
	window := models.Window{{
		Strike: 22250,
		Call:   models.OptionSide{Close: 100.004, PrevClose: 100, ChangeOI: 500},
		Put:    models.OptionSide{Close: 99.996, PrevClose: 100, ChangeOI: -500},
	}}
	rows := Annotate(window)
	if rows[0].Call.Strategy != models.LongBuildup {
		t.Fatalf("call classified as %s", rows[0].Call.Strategy)
	}
	if rows[0].Put.Strategy != models.LongUnwinding {
		t.Fatalf("put classified as %s", rows[0].Put.Strategy)
	}
	if rows[0].Call.PriceChange != 0 {
		t.Fatalf("displayed price change should be rounded, got %v", rows[0].Call.PriceChange)
	}
	if pc := PriceChange(window[0].Call); pc <= 0 {
		t.Fatalf("PriceChange = %v, want a positive unrounded value", pc)
	}
}
