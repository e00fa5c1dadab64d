package source

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Venue ids of the built-in adapters.
const (
	VenueJupiter   domain.Venue = "jupiter"
	VenueUniswap   domain.Venue = "uniswap_v3_base"
	VenueCoinGecko domain.Venue = "coingecko"
	VenueBinance   domain.Venue = "binance"
	VenueKraken    domain.Venue = "kraken"
	VenueCoinbase  domain.Venue = "coinbase"
)

// NewJupiterAdapter quotes Solana pairs from the Jupiter price API, e.g.
// GET {baseURL}/price?ids=<mint>&vsToken=<mint>.
func NewJupiterAdapter(baseURL string, mints map[string]string, httpClient *http.Client) *RESTAdapter {
	baseURL = strings.TrimRight(baseURL, "/")
	mints = mergeSymbols(defaultSolanaMints, mints)

	build := func(pair domain.Pair) (string, error) {
		baseMint, ok := mints[pair.Base()]
		if !ok {
			return "", fmt.Errorf("no mint for %s", pair.Base())
		}
		quoteMint, ok := mints[pair.Quote()]
		if !ok {
			return "", fmt.Errorf("no mint for %s", pair.Quote())
		}
		q := url.Values{}
		q.Set("ids", baseMint)
		q.Set("vsToken", quoteMint)
		return baseURL + "/price?" + q.Encode(), nil
	}
	extract := func(body []byte, pair domain.Pair) (quote, error) {
		mint := mints[pair.Base()]
		res := gjson.GetBytes(body, "data."+mint+".price")
		if !res.Exists() {
			return quote{}, fmt.Errorf("jupiter: no price for %s: %w", mint, domain.ErrNoPrice)
		}
		return quote{price: res.Float()}, nil
	}
	return newRESTAdapter(VenueJupiter, 0.9, httpClient, build, extract)
}

// NewCoinGeckoAdapter quotes USD pairs from the CoinGecko simple price API.
func NewCoinGeckoAdapter(baseURL string, ids map[string]string, httpClient *http.Client) *RESTAdapter {
	baseURL = strings.TrimRight(baseURL, "/")
	ids = mergeSymbols(defaultCoinGeckoIDs, ids)

	build := func(pair domain.Pair) (string, error) {
		if err := requireUSDQuote(pair); err != nil {
			return "", err
		}
		id, ok := ids[pair.Base()]
		if !ok {
			return "", fmt.Errorf("no coingecko id for %s", pair.Base())
		}
		q := url.Values{}
		q.Set("ids", id)
		q.Set("vs_currencies", "usd")
		return baseURL + "/simple/price?" + q.Encode(), nil
	}
	extract := func(body []byte, pair domain.Pair) (quote, error) {
		id := ids[pair.Base()]
		res := gjson.GetBytes(body, id+".usd")
		if !res.Exists() {
			return quote{}, fmt.Errorf("coingecko: no usd price for %s: %w", id, domain.ErrNoPrice)
		}
		return quote{price: res.Float()}, nil
	}
	return newRESTAdapter(VenueCoinGecko, 0.7, httpClient, build, extract)
}

// NewKrakenAdapter quotes USD pairs from the Kraken public ticker. The last
// trade price is result.<pair>.c[0]; Kraken renames pairs in the result
// (XETHZUSD), so the first result entry is used.
func NewKrakenAdapter(baseURL string, httpClient *http.Client) *RESTAdapter {
	baseURL = strings.TrimRight(baseURL, "/")

	build := func(pair domain.Pair) (string, error) {
		if err := requireUSDQuote(pair); err != nil {
			return "", err
		}
		q := url.Values{}
		q.Set("pair", cexAsset(pair.Base())+"USD")
		return baseURL + "/0/public/Ticker?" + q.Encode(), nil
	}
	extract := func(body []byte, _ domain.Pair) (quote, error) {
		if errs := gjson.GetBytes(body, "error"); errs.IsArray() && len(errs.Array()) > 0 {
			return quote{}, fmt.Errorf("kraken: %s", errs.Array()[0].String())
		}
		var (
			price  float64
			volume float64
			found  bool
		)
		gjson.GetBytes(body, "result").ForEach(func(_, v gjson.Result) bool {
			last := v.Get("c.0")
			if !last.Exists() {
				return true
			}
			price = last.Float()
			volume = v.Get("v.1").Float()
			found = true
			return false
		})
		if !found {
			return quote{}, fmt.Errorf("kraken: empty ticker result: %w", domain.ErrNoPrice)
		}
		return quote{price: price, liquidity: volume * price}, nil
	}
	return newRESTAdapter(VenueKraken, 0.8, httpClient, build, extract)
}

// NewCoinbaseAdapter quotes USD pairs from the Coinbase spot price API.
func NewCoinbaseAdapter(baseURL string, httpClient *http.Client) *RESTAdapter {
	baseURL = strings.TrimRight(baseURL, "/")

	build := func(pair domain.Pair) (string, error) {
		if err := requireUSDQuote(pair); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/v2/prices/%s-USD/spot", baseURL, url.PathEscape(cexAsset(pair.Base()))), nil
	}
	extract := func(body []byte, _ domain.Pair) (quote, error) {
		res := gjson.GetBytes(body, "data.amount")
		if !res.Exists() {
			return quote{}, fmt.Errorf("coinbase: missing data.amount: %w", domain.ErrNoPrice)
		}
		return quote{price: res.Float()}, nil
	}
	return newRESTAdapter(VenueCoinbase, 0.8, httpClient, build, extract)
}
