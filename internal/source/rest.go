package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// quote is what an extractor pulls out of a response body.
type quote struct {
	price     float64
	liquidity float64
}

// RESTAdapter fetches a price with a single GET and extracts it from the
// JSON body. Venue-specific constructors supply the URL builder and
// extractor.
type RESTAdapter struct {
	venue      domain.Venue
	confidence float64
	httpClient *http.Client
	buildURL   func(pair domain.Pair) (string, error)
	extract    func(body []byte, pair domain.Pair) (quote, error)
	now        func() time.Time
}

func newRESTAdapter(
	venue domain.Venue,
	confidence float64,
	httpClient *http.Client,
	buildURL func(domain.Pair) (string, error),
	extract func([]byte, domain.Pair) (quote, error),
) *RESTAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTAdapter{
		venue:      venue,
		confidence: confidence,
		httpClient: httpClient,
		buildURL:   buildURL,
		extract:    extract,
		now:        time.Now,
	}
}

func (a *RESTAdapter) Venue() domain.Venue { return a.venue }

// FetchPrice issues the venue request and converts the result to a
// PricePoint or a *domain.FetchError.
func (a *RESTAdapter) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PricePoint, error) {
	url, err := a.buildURL(pair)
	if err != nil {
		return domain.PricePoint{}, a.permanent(pair, err)
	}

	body, err := getJSON(ctx, a.httpClient, url)
	if err != nil {
		return domain.PricePoint{}, a.wrap(pair, err)
	}

	q, err := a.extract(body, pair)
	if err != nil {
		return domain.PricePoint{}, a.permanent(pair, err)
	}
	if q.price <= 0 {
		return domain.PricePoint{}, a.permanent(pair, fmt.Errorf("non-positive price %v: %w", q.price, domain.ErrNoPrice))
	}

	return domain.PricePoint{
		Venue:      a.venue,
		Pair:       pair,
		Price:      q.price,
		ObservedAt: a.now(),
		Confidence: a.confidence,
		Liquidity:  q.liquidity,
	}, nil
}

func (a *RESTAdapter) permanent(pair domain.Pair, err error) error {
	return &domain.FetchError{Venue: a.venue, Pair: pair, Err: err}
}

func (a *RESTAdapter) wrap(pair domain.Pair, err error) error {
	return &domain.FetchError{Venue: a.venue, Pair: pair, Transient: isTransient(err), Err: err}
}

// statusError is returned by getJSON for non-2xx responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// getJSON performs a GET and returns the body of a 2xx response.
func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &statusError{code: resp.StatusCode, body: string(snippet)}
	}
	return body, nil
}

// isTransient classifies transport failures, 429s and 5xx responses as
// retryable.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

var _ domain.SourceAdapter = (*RESTAdapter)(nil)
