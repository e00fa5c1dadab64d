package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceStore implements domain.PriceStore using Redis hashes. Each entry is
// stored at "{namespace}:price:{venue}:{pair}" and expires with the cache
// entry itself.
type PriceStore struct {
	client *Client
	rdb    *redis.Client
}

// NewPriceStore creates a PriceStore backed by the given Client.
func NewPriceStore(c *Client) *PriceStore {
	return &PriceStore{client: c, rdb: c.rdb}
}

func (ps *PriceStore) priceKey(key domain.CacheKey) string {
	return ps.client.key("price", key.String())
}

// Put writes the entry and sets the key to expire at entry.ExpiresAt.
func (ps *PriceStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	key := ps.priceKey(entry.Key)
	pp := entry.Value
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(pp.Price, 'f', -1, 64),
		"ts":        strconv.FormatInt(pp.ObservedAt.UnixNano(), 10),
		"conf":      strconv.FormatFloat(pp.Confidence, 'f', -1, 64),
		"liq":       strconv.FormatFloat(pp.Liquidity, 'f', -1, 64),
		"expiresAt": strconv.FormatInt(entry.ExpiresAt.UnixNano(), 10),
	}
	_, err := ps.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.PExpireAt(ctx, key, entry.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put price %s: %w", entry.Key, err)
	}
	return nil
}

// Get returns the stored entry. It returns domain.ErrNotFound when the key
// does not exist or has expired.
func (ps *PriceStore) Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, error) {
	vals, err := ps.rdb.HGetAll(ctx, ps.priceKey(key)).Result()
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.CacheEntry{}, domain.ErrNotFound
	}

	price, err := parseFloatField(vals, "price")
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	ts, err := parseIntField(vals, "ts")
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	exp, err := parseIntField(vals, "expiresAt")
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	conf, _ := parseFloatField(vals, "conf")
	liq, _ := parseFloatField(vals, "liq")

	return domain.CacheEntry{
		Key: key,
		Value: domain.PricePoint{
			Venue:      key.Venue,
			Pair:       key.Pair,
			Price:      price,
			ObservedAt: time.Unix(0, ts),
			Confidence: conf,
			Liquidity:  liq,
		},
		ExpiresAt: time.Unix(0, exp),
	}, nil
}

func parseFloatField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

func parseIntField(vals map[string]string, field string) (int64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
