package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// UniswapAdapter prices Base pairs from a Uniswap v3 subgraph. The base
// token's USD price is derivedETH × bundle.ethPriceUSD.
type UniswapAdapter struct {
	graphqlURL string
	apiKey     string
	tokens     map[string]common.Address
	httpClient *http.Client
	now        func() time.Time
}

// NewUniswapAdapter creates a subgraph adapter. tokens overrides or extends
// the built-in symbol → contract address table; invalid addresses are
// rejected.
func NewUniswapAdapter(graphqlURL, apiKey string, tokens map[string]string, httpClient *http.Client) (*UniswapAdapter, error) {
	merged := mergeSymbols(defaultBaseTokens, tokens)
	addrs := make(map[string]common.Address, len(merged))
	for sym, hex := range merged {
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("uniswap: token %s: invalid address %q", sym, hex)
		}
		addrs[sym] = common.HexToAddress(hex)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &UniswapAdapter{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		tokens:     addrs,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

func (a *UniswapAdapter) Venue() domain.Venue { return VenueUniswap }

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const uniswapPriceQuery = `
	query Price($base: String!, $quote: String!) {
		base: token(id: $base) {
			derivedETH
			totalValueLockedUSD
		}
		quote: token(id: $quote) {
			derivedETH
		}
		bundle(id: "1") {
			ethPriceUSD
		}
	}
`

// FetchPrice queries the subgraph for the pair's tokens and the ETH/USD
// bundle price.
func (a *UniswapAdapter) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PricePoint, error) {
	baseAddr, ok := a.tokens[pair.Base()]
	if !ok {
		return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("no token address for %s", pair.Base()))
	}
	quoteAddr, ok := a.tokens[pair.Quote()]
	if !ok {
		return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("no token address for %s", pair.Quote()))
	}

	// Subgraph entity ids are lower-case hex.
	data, err := a.doQuery(ctx, uniswapPriceQuery, map[string]any{
		"base":  strings.ToLower(baseAddr.Hex()),
		"quote": strings.ToLower(quoteAddr.Hex()),
	})
	if err != nil {
		var gqlErr *graphqlError
		transient := isTransient(err) && !errors.As(err, &gqlErr)
		return domain.PricePoint{}, a.fail(pair, transient, err)
	}

	var result struct {
		Base *struct {
			DerivedETH          string `json:"derivedETH"`
			TotalValueLockedUSD string `json:"totalValueLockedUSD"`
		} `json:"base"`
		Quote *struct {
			DerivedETH string `json:"derivedETH"`
		} `json:"quote"`
		Bundle *struct {
			EthPriceUSD string `json:"ethPriceUSD"`
		} `json:"bundle"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("decode price: %w", err))
	}
	if result.Base == nil || result.Bundle == nil {
		return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("token %s not indexed: %w", pair.Base(), domain.ErrNoPrice))
	}

	baseETH := parseDecimal(result.Base.DerivedETH)
	ethUSD := parseDecimal(result.Bundle.EthPriceUSD)

	var price float64
	switch {
	case pair.QuoteIsUSD():
		price = baseETH * ethUSD
	case result.Quote != nil && parseDecimal(result.Quote.DerivedETH) > 0:
		price = baseETH / parseDecimal(result.Quote.DerivedETH)
	}
	if price <= 0 {
		return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("non-positive derived price: %w", domain.ErrNoPrice))
	}

	return domain.PricePoint{
		Venue:      VenueUniswap,
		Pair:       pair,
		Price:      price,
		ObservedAt: a.now(),
		Confidence: 0.85,
		Liquidity:  parseDecimal(result.Base.TotalValueLockedUSD),
	}, nil
}

func (a *UniswapAdapter) fail(pair domain.Pair, transient bool, err error) error {
	return &domain.FetchError{Venue: VenueUniswap, Pair: pair, Transient: transient, Err: err}
}

// graphqlError carries the first error reported in a GraphQL response.
type graphqlError struct{ msg string }

func (e *graphqlError) Error() string { return "graphql error: " + e.msg }

// doQuery executes a GraphQL query and returns the raw "data" field.
func (a *UniswapAdapter) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, &graphqlError{msg: gqlResp.Errors[0].Message}
	}
	return gqlResp.Data, nil
}

func parseDecimal(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

var _ domain.SourceAdapter = (*UniswapAdapter)(nil)
