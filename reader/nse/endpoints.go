package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"optionflow/internal/symbols"
	"optionflow/models"
)

// FetchOptionChain returns the option chain for symbol. An empty expiry
// asks for the upstream default, which filters to the nearest expiry.
func (c *Client) FetchOptionChain(ctx context.Context, symbol, expiry string) (*models.RawOptionChain, error) {
	symbol = symbols.Normalize(symbol)
	path := c.upstream.EquityChainPath
	if symbols.IsIndex(symbol) {
		path = c.upstream.IndexChainPath
	}

	params := url.Values{"symbol": {symbol}}
	if expiry != "" {
		params.Set("expiryDate", expiry)
	}

	body, err := c.Fetch(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var chain models.RawOptionChain
	if err := json.Unmarshal(body, &chain); err != nil {
		return nil, fmt.Errorf("%w: option chain for %s: %v", ErrMalformedPayload, symbol, err)
	}
	return &chain, nil
}

// FetchQuoteDerivative returns the per-contract quotes for symbol.
func (c *Client) FetchQuoteDerivative(ctx context.Context, symbol string) (*models.RawQuoteDerivative, error) {
	symbol = symbols.Normalize(symbol)
	body, err := c.Fetch(ctx, c.upstream.QuoteDerivativePath, url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var quotes models.RawQuoteDerivative
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("%w: quote derivative for %s: %v", ErrMalformedPayload, symbol, err)
	}
	return &quotes, nil
}
