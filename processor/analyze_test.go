package processor

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"optionflow/models"
)

func TestComputeSummary(t *testing.T) {
	table := models.OptionChainTable{
		{Strike: 100, Call: models.OptionSide{OI: 300, Volume: 40}, Put: models.OptionSide{OI: 200, Volume: 10}},
		{Strike: 200, Call: models.OptionSide{OI: 100, Volume: 60}, Put: models.OptionSide{OI: 150, Volume: 90}},
	}
	s := ComputeSummary(table, "28-Mar-2024 15:30:00")
	if s.Time != "15:30:00" {
		t.Errorf("unexpected time %q", s.Time)
	}
	if s.CallOI != 400 || s.PutOI != 350 || s.Trend != -50 || s.VolumeDiff != 0 {
		t.Errorf("unexpected totals %+v", s)
	}
	if !s.PCROI.Valid || s.PCROI.Value != 0.88 {
		t.Errorf("unexpected PCR(OI) %v", s.PCROI)
	}
	if !s.PCRVolume.Valid || s.PCRVolume.Value != 1 {
		t.Errorf("unexpected PCR(volume) %v", s.PCRVolume)
	}
	if again := ComputeSummary(table, "28-Mar-2024 15:30:00"); again != s {
		t.Errorf("summary not deterministic: %+v vs %+v", again, s)
	}
}

func TestComputeSummaryZeroCalls(t *testing.T) {
	table := models.OptionChainTable{{Strike: 100, Put: models.OptionSide{OI: 10, Volume: 5}}}
	s := ComputeSummary(table, "")
	if s.PCROI.Valid || s.PCRVolume.Valid {
		t.Fatalf("expected N/A ratios, got %v %v", s.PCROI, s.PCRVolume)
	}
	if s.PCROI.String() != "N/A" {
		t.Fatalf("unexpected text %q", s.PCROI.String())
	}
}

func TestAnalyzeMaxOIPairBEPs(t *testing.T) {
	window := models.Window{
		{Strike: 22300, Call: models.OptionSide{OI: 10, Close: 80.15}, Put: models.OptionSide{OI: 10, Close: 120.4}},
		{Strike: 22250, Call: models.OptionSide{OI: 500, Close: 122.35, Value: 10.555}, Put: models.OptionSide{OI: 400, Close: 45.1}},
		{Strike: 22200, Call: models.OptionSide{OI: 900}, Put: models.OptionSide{OI: 0}},
	}
	p := AnalyzeMaxOIPair(window)
	if !p.Found || p.Strike != 22250 {
		t.Fatalf("expected first max strike 22250, got %+v", p)
	}
	if p.BEP1.Value != 22372.35 || p.BEP2.Value != -22204.9 || p.BEP3.Value != 22417.45 || p.BEP4.Value != -22082.55 {
		t.Fatalf("unexpected BEPs %v %v %v %v", p.BEP1, p.BEP2, p.BEP3, p.BEP4)
	}
	if p.CallValue != 10.56 {
		t.Fatalf("call value not rounded: %v", p.CallValue)
	}

	strike := decimal.NewFromInt(int64(p.Strike))
	b1, b2, b3 := decimal.NewFromFloat(p.BEP1.Value), decimal.NewFromFloat(p.BEP2.Value), decimal.NewFromFloat(p.BEP3.Value)
	callClose, putClose := decimal.NewFromFloat(p.CallClose), decimal.NewFromFloat(p.PutClose)
	if !b3.Sub(b1).Equal(putClose) {
		t.Fatalf("BEP3-BEP1 = %s, want %s", b3.Sub(b1), putClose)
	}
	if want := strike.Mul(decimal.NewFromInt(2)).Sub(putClose).Add(callClose); !b1.Sub(b2).Equal(want) {
		t.Fatalf("BEP1-BEP2 = %s, want %s", b1.Sub(b2), want)
	}
}

func TestAnalyzePairMissingCloses(t *testing.T) {
	window := models.Window{{Strike: 22250, Call: models.OptionSide{Value: 10}, Put: models.OptionSide{Value: 5, Close: 40}}}
	p := AnalyzeMaxValuePair(window)
	if p.BEP1.Valid || p.BEP3.Valid || p.BEP4.Valid {
		t.Fatalf("expected N/A for BEPs needing call close: %+v", p)
	}
	if !p.BEP2.Valid || p.BEP2.Value != -22210 {
		t.Fatalf("unexpected BEP2 %v", p.BEP2)
	}
	if p.TotalValue != 15 {
		t.Fatalf("unexpected total value %v", p.TotalValue)
	}

	empty := AnalyzeMaxOIPair(nil)
	if empty.Found || empty.BEP1.Valid || empty.Message == "" {
		t.Fatalf("unexpected empty analysis %+v", empty)
	}
}

func TestRankHighVolume(t *testing.T) {
	window := models.Window{
		{Strike: 300, Call: models.OptionSide{Volume: 50}, Put: models.OptionSide{Volume: 0}},
		{Strike: 200, Call: models.OptionSide{Volume: 70}, Put: models.OptionSide{Volume: 50}},
		{Strike: 100, Call: models.OptionSide{Volume: 10}, Put: models.OptionSide{Volume: 90}},
	}
	ranking := RankHighVolume(window, 3)
	if len(ranking) != 3 {
		t.Fatalf("expected 3 records, got %d", len(ranking))
	}
	want := []struct {
		strike int
		kind   models.OptionType
	}{{100, models.Put}, {200, models.Call}, {300, models.Call}}
	for i, w := range want {
		r := ranking[i]
		if r.Rank != i+1 || r.Strike != w.strike || r.Type != w.kind {
			t.Fatalf("rank %d: got %+v, want %+v", i+1, r, w)
		}
	}

	all := RankHighVolume(window, 20)
	if len(all) != 5 {
		t.Fatalf("zero-volume side not skipped: %d records", len(all))
	}
}

func TestEstimateRange(t *testing.T) {
	ranking := []models.VolumeRecord{
		{Strike: 22300, Type: models.Call},
		{Strike: 22200, Type: models.Put},
		{Strike: 22400, Type: models.Call},
		{Strike: 22100, Type: models.Put},
		{Strike: 22250, Type: models.Call},
		{Strike: 22150, Type: models.Put},
		{Strike: 23000, Type: models.Call},
	}
	up, down, span := EstimateRange(ranking, 6)
	if up.Value != 22400 || down.Value != 22100 || span.Value != 300 {
		t.Fatalf("unexpected range %v %v %v", up, down, span)
	}

	up, down, span = EstimateRange(ranking[:1], 6)
	if !up.Valid || down.Valid || span.Valid {
		t.Fatalf("expected only range up, got %v %v %v", up, down, span)
	}
}

func TestAnalyzeHighVolume(t *testing.T) {
	ranking := []models.VolumeRecord{
		{Rank: 1, Strike: 22250, Type: models.Call, OI: 500, LTP: 120.5, Value: 10},
		{Rank: 2, Strike: 22250, Type: models.Put, OI: 700, LTP: 95.25, Value: 20},
		{Rank: 3, Strike: 22300, Type: models.Call, OI: 900, LTP: 80},
		{Rank: 4, Strike: 22200, Type: models.Put, OI: 100, LTP: 70},
	}
	a := AnalyzeHighVolume(ranking, "28-Mar-2024", 6)
	if a.CallCount != 2 || a.PutCount != 2 {
		t.Fatalf("unexpected counts %d/%d", a.CallCount, a.PutCount)
	}
	if len(a.MissingPairs) != 2 || a.MissingPairs[0] != "22200 Call missing" || a.MissingPairs[1] != "22300 Put missing" {
		t.Fatalf("unexpected missing pairs %v", a.MissingPairs)
	}
	if a.MaxStrike != 22250 || a.TotalOI != 1200 {
		t.Fatalf("unexpected max strike %d (%v)", a.MaxStrike, a.TotalOI)
	}
	if a.PEP1.Value != 22370.5 || a.PEP2.Value != 22154.75 || a.PEPUp.Value != 22465.75 || a.PEPDown.Value != 22034.25 {
		t.Fatalf("unexpected pivots %v %v %v %v", a.PEP1, a.PEP2, a.PEPUp, a.PEPDown)
	}
	if a.RangeUp.Value != 22300 || a.RangeDown.Value != 22200 || a.Range.Value != 100 {
		t.Fatalf("unexpected range %v %v %v", a.RangeUp, a.RangeDown, a.Range)
	}

	empty := AnalyzeHighVolume(nil, "", 6)
	if empty.Message == "" || empty.Range.Valid || empty.PEP1.Valid {
		t.Fatalf("unexpected empty analysis %+v", empty)
	}
}

func TestCheckLTPSimilarity(t *testing.T) {
	window := models.Window{
		{Strike: 22300, Call: models.OptionSide{LastPrice: 80}, Put: models.OptionSide{LastPrice: 120}},
		{Strike: 22250, Call: models.OptionSide{LastPrice: 100.3}, Put: models.OptionSide{LastPrice: 99.3}},
		{Strike: 22200, Call: models.OptionSide{LastPrice: 0}, Put: models.OptionSide{LastPrice: 0}},
	}
	res := CheckLTPSimilarity(window, "28-Mar-2024 10:15:00", 1)
	if len(res.Matches) != 1 || res.Message != "" || res.Closest != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	m := res.Matches[0]
	if m.Strike != 22250 || m.Time != "10:15:00" || m.TotalLTP != 199.6 || m.Difference != 1 {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestCheckLTPSimilarityClosest(t *testing.T) {
	window := models.Window{
		{Strike: 22300, Call: models.OptionSide{LastPrice: 80}, Put: models.OptionSide{LastPrice: 120}},
		{Strike: 22250, Call: models.OptionSide{LastPrice: 105}, Put: models.OptionSide{LastPrice: 98}},
		{Strike: 22200, Call: models.OptionSide{LastPrice: 140}, Put: models.OptionSide{LastPrice: 70}},
	}
	res := CheckLTPSimilarity(window, "", 1)
	if len(res.Matches) != 0 || res.Closest == nil || res.Closest.Strike != 22250 || res.Closest.Difference != 7 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message == "" {
		t.Fatalf("expected explanatory message")
	}

	none := CheckLTPSimilarity(models.Window{{Strike: 1, Call: models.OptionSide{LastPrice: 5}}}, "", 1)
	if none.Closest != nil || !strings.Contains(none.Message, "both call and put traded") {
		t.Fatalf("unexpected result %+v", none)
	}
}

func TestEstimateRangeNegativeTopK(t *testing.T) {
	ranking := []models.VolumeRecord{
		{Strike: 22300, Type: models.Call},
		{Strike: 22200, Type: models.Put},
	}
	up, down, span := EstimateRange(ranking, -1)
	if up.Valid || down.Valid || span.Valid {
		t.Fatalf("expected N/A range, got %v %v %v", up, down, span)
	}
}
