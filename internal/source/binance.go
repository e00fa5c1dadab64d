package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	bcommon "github.com/adshao/go-binance/v2/common"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// BinanceAdapter quotes USD pairs from the Binance spot ticker, pricing
// BASE/USD* against the BASEUSDT book.
type BinanceAdapter struct {
	client *binance.Client
	now    func() time.Time
}

// NewBinanceAdapter creates an unauthenticated spot client. An empty baseURL
// keeps the library default.
func NewBinanceAdapter(baseURL string, httpClient *http.Client) *BinanceAdapter {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &BinanceAdapter{client: client, now: time.Now}
}

func (a *BinanceAdapter) Venue() domain.Venue { return VenueBinance }

// FetchPrice returns the last traded price for the pair's USDT market.
func (a *BinanceAdapter) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PricePoint, error) {
	if err := requireUSDQuote(pair); err != nil {
		return domain.PricePoint{}, a.fail(pair, false, err)
	}
	symbol := cexAsset(pair.Base()) + "USDT"

	prices, err := a.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *bcommon.APIError
		return domain.PricePoint{}, a.fail(pair, !errors.As(err, &apiErr), fmt.Errorf("list prices %s: %w", symbol, err))
	}

	for _, p := range prices {
		if p == nil || p.Symbol != symbol {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil || price <= 0 {
			return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("bad price %q for %s: %w", p.Price, symbol, domain.ErrNoPrice))
		}
		return domain.PricePoint{
			Venue:      VenueBinance,
			Pair:       pair,
			Price:      price,
			ObservedAt: a.now(),
			Confidence: 0.9,
		}, nil
	}
	return domain.PricePoint{}, a.fail(pair, false, fmt.Errorf("symbol %s missing from response: %w", symbol, domain.ErrNoPrice))
}

func (a *BinanceAdapter) fail(pair domain.Pair, transient bool, err error) error {
	return &domain.FetchError{Venue: VenueBinance, Pair: pair, Transient: transient, Err: err}
}

var _ domain.SourceAdapter = (*BinanceAdapter)(nil)
