package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ================================
// Upstream option-chain payload
// ================================

// RawOptionChain is the typed view of the option-chain endpoint response.
// Filtered is nil when the upstream omits the key.
type RawOptionChain struct {
	Records  ChainRecords   `json:"records"`
	Filtered *FilteredChain `json:"filtered"`
}

type ChainRecords struct {
	ExpiryDates     []string     `json:"expiryDates"`
	Timestamp       string       `json:"timestamp"`
	UnderlyingValue Num          `json:"underlyingValue"`
	StrikePrices    []Num        `json:"strikePrices"`
	Data            []ChainEntry `json:"data"`
}

type FilteredChain struct {
	Data []ChainEntry `json:"data"`
	CE   SideTotals   `json:"CE"`
	PE   SideTotals   `json:"PE"`
}

type SideTotals struct {
	TotOI  Num `json:"totOI"`
	TotVol Num `json:"totVol"`
}

// ChainEntry is one strike of the chain. CE and PE may each be the literal
// 0 the upstream uses for a missing side.
type ChainEntry struct {
	StrikePrice Num          `json:"strikePrice"`
	ExpiryDate  string       `json:"expiryDate"`
	CE          OptionalSide `json:"CE"`
	PE          OptionalSide `json:"PE"`
}

// SideRecord is a single CE or PE record. The OHLC fields are only present
// on some payloads; the quote-derivative endpoint fills them otherwise.
type SideRecord struct {
	StrikePrice          Num    `json:"strikePrice"`
	ExpiryDate           string `json:"expiryDate"`
	Underlying           string `json:"underlying"`
	Identifier           string `json:"identifier"`
	OpenInterest         Num    `json:"openInterest"`
	ChangeInOpenInterest Num    `json:"changeinOpenInterest"`
	TotalTradedVolume    Num    `json:"totalTradedVolume"`
	ImpliedVolatility    Num    `json:"impliedVolatility"`
	LastPrice            Num    `json:"lastPrice"`
	Change               Num    `json:"change"`
	OpenPrice            Num    `json:"openPrice"`
	HighPrice            Num    `json:"highPrice"`
	LowPrice             Num    `json:"lowPrice"`
	ClosePrice           Num    `json:"closePrice"`
	PrevClose            Num    `json:"prevClose"`
	TotalTurnover        Num    `json:"totalTurnover"`
	UnderlyingValue      Num    `json:"underlyingValue"`
}

// OptionalSide is Present with a decoded record, or Absent when the
// upstream sent 0, null or nothing.
type OptionalSide struct {
	Present bool
	Record  SideRecord
}

func (o *OptionalSide) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*o = OptionalSide{}
		return nil
	case data[0] == '{':
		var rec SideRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		*o = OptionalSide{Present: true, Record: rec}
		return nil
	}
	if f, err := strconv.ParseFloat(string(data), 64); err == nil && f == 0 {
		*o = OptionalSide{}
		return nil
	}
	return fmt.Errorf("option side: unexpected value %s", data)
}

func (o OptionalSide) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("0"), nil
	}
	return json.Marshal(o.Record)
}

// ================================
// Upstream quote-derivative payload
// ================================

type RawQuoteDerivative struct {
	Info            QuoteInfo    `json:"info"`
	UnderlyingValue Num          `json:"underlyingValue"`
	FetchTime       string       `json:"fut_timestamp"`
	OptTimestamp    string       `json:"opt_timestamp"`
	Stocks          []QuoteStock `json:"stocks"`
}

type QuoteInfo struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"companyName"`
}

// QuoteStock is one instrument; entries without Metadata are ignored.
type QuoteStock struct {
	Metadata  *QuoteMetadata `json:"metadata"`
	OrderBook QuoteOrderBook `json:"marketDeptOrderBook"`
}

type QuoteMetadata struct {
	InstrumentType          string `json:"instrumentType"`
	ExpiryDate              string `json:"expiryDate"`
	OptionType              string `json:"optionType"`
	StrikePrice             Num    `json:"strikePrice"`
	Identifier              string `json:"identifier"`
	OpenPrice               Num    `json:"openPrice"`
	HighPrice               Num    `json:"highPrice"`
	LowPrice                Num    `json:"lowPrice"`
	ClosePrice              Num    `json:"closePrice"`
	PrevClose               Num    `json:"prevClose"`
	LastPrice               Num    `json:"lastPrice"`
	Change                  Num    `json:"change"`
	NumberOfContractsTraded Num    `json:"numberOfContractsTraded"`
	TotalTurnover           Num    `json:"totalTurnover"`
}

type QuoteOrderBook struct {
	TradeInfo QuoteTradeInfo `json:"tradeInfo"`
	OtherInfo QuoteOtherInfo `json:"otherInfo"`
}

type QuoteTradeInfo struct {
	OpenInterest         Num `json:"openInterest"`
	ChangeInOpenInterest Num `json:"changeinOpenInterest"`
}

type QuoteOtherInfo struct {
	ImpliedVolatility Num `json:"impliedVolatility"`
}

// ================================
// Numeric coercion
// ================================

// Num decodes JSON numbers, numeric strings, "-", "" and null. Anything
// that is not a finite number becomes 0.
type Num float64

func (n *Num) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(unq), ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = Num(f)
	return nil
}

func (n Num) Float() float64 {
	return float64(n)
}
