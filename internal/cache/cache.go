// Package cache keeps recent search results in Redis under two keys per
// query: an exact key that includes every filter parameter and a relaxed key
// for the query text alone.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
)

// Kind classifies a lookup.
type Kind string

const (
	KindExact   Kind = "exact"
	KindRelaxed Kind = "relaxed"
	KindMiss    Kind = "miss"
)

// Result is the outcome of Lookup. Records from a relaxed hit came from a
// search with different parameters and must be filtered again by the caller.
type Result struct {
	Kind              Kind
	Records           []models.RawRecord
	RequiresFiltering bool
	CreatedAt         time.Time
	Hits              int64
}

// Stats are the global lookup counters.
type Stats struct {
	ExactHits   int64 `json:"exact_hits"`
	RelaxedHits int64 `json:"relaxed_hits"`
	Misses      int64 `json:"misses"`
}

// Options configures a Cache.
type Options struct {
	Prefix   string
	BaseTTL  time.Duration
	MinTTL   time.Duration
	MaxTTL   time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Cache is the Redis backed result cache. It is safe for concurrent use.
type Cache struct {
	rdb     *redis.Client
	prefix  string
	baseTTL time.Duration
	minTTL  time.Duration
	maxTTL  time.Duration
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a cache on an existing client.
func New(rdb *redis.Client, opts Options, logger *slog.Logger) *Cache {
	c := &Cache{
		rdb:     rdb,
		prefix:  opts.Prefix,
		baseTTL: opts.BaseTTL,
		minTTL:  opts.MinTTL,
		maxTTL:  opts.MaxTTL,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  logging.OrDiscard(logger).With("component", "cache"),
	}
	if c.prefix == "" {
		c.prefix = "litpush"
	}
	if c.baseTTL <= 0 {
		c.baseTTL = 6 * time.Hour
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Lookup tries the exact key, then the relaxed key. Every call increments
// exactly one of the stats counters.
func (c *Cache) Lookup(ctx context.Context, query string, p Params) (Result, error) {
	entry, err := c.get(ctx, c.exactKey(query, p))
	if err == nil {
		c.count(ctx, "exact_hits")
		return Result{Kind: KindExact, Records: entry.Records, CreatedAt: entry.CreatedAt, Hits: entry.Hits}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Result{Kind: KindMiss}, err
	}

	entry, err = c.get(ctx, c.relaxedKey(query))
	if err == nil {
		c.count(ctx, "relaxed_hits")
		return Result{Kind: KindRelaxed, Records: entry.Records, RequiresFiltering: true, CreatedAt: entry.CreatedAt, Hits: entry.Hits}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Result{Kind: KindMiss}, err
	}

	c.count(ctx, "misses")
	return Result{Kind: KindMiss}, nil
}

func (c *Cache) get(ctx context.Context, key string) (*models.CacheEntry, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is treated as absent and dropped.
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		c.rdb.Del(ctx, key)
		return nil, redis.Nil
	}
	ttl := c.rdb.TTL(ctx, key).Val()
	pipe := c.rdb.TxPipeline()
	hits := pipe.Incr(ctx, hitsKey(key))
	if ttl > 0 {
		pipe.Expire(ctx, hitsKey(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err == nil {
		entry.Hits = hits.Val()
	}
	return &entry, nil
}

func (c *Cache) count(ctx context.Context, name string) {
	if err := c.rdb.Incr(ctx, c.statsKey(name)).Err(); err != nil {
		c.logger.Debug("stats counter update failed", "counter", name, "error", err)
	}
}

// Store writes records under both the exact and relaxed keys of query.
func (c *Cache) Store(ctx context.Context, query string, p Params, records []models.RawRecord) error {
	now := c.now()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.PMID)
	}
	entry := models.CacheEntry{
		Query:      NormalizeQuery(query),
		FilterHash: FilterHash(p),
		IDs:        ids,
		Records:    records,
		CreatedAt:  now.UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	ttl := c.TTLFor(len(records), now)

	exact, relaxed := c.exactKey(query, p), c.relaxedKey(query)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, exact, raw, ttl)
	pipe.Set(ctx, relaxed, raw, ttl)
	pipe.Del(ctx, hitsKey(exact), hitsKey(relaxed))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	c.logger.Debug("cached search results", "query", entry.Query, "count", len(records), "ttl", ttl)
	return nil
}

// Invalidate removes cached results for query. With p set only that exact
// entry is removed; with p nil the relaxed entry and every exact entry of the
// query are removed. It returns the number of entries deleted.
func (c *Cache) Invalidate(ctx context.Context, query string, p *Params) (int64, error) {
	if p != nil {
		key := c.exactKey(query, *p)
		n, err := c.rdb.Del(ctx, key, hitsKey(key)).Result()
		if err != nil {
			return 0, fmt.Errorf("invalidate %q: %w", query, err)
		}
		return min(n, 1), nil
	}

	relaxed := c.relaxedKey(query)
	keys := []string{relaxed, hitsKey(relaxed)}
	iter := c.rdb.Scan(ctx, 0, c.exactPrefix(query)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan exact entries of %q: %w", query, err)
	}

	var entries int64
	for _, k := range keys {
		n, err := c.rdb.Del(ctx, k).Result()
		if err != nil {
			return entries, fmt.Errorf("invalidate %q: %w", query, err)
		}
		if !isHitsKey(k) {
			entries += n
		}
	}
	c.logger.Info("invalidated cache entries", "query", NormalizeQuery(query), "entries", entries)
	return entries, nil
}

func isHitsKey(k string) bool {
	return strings.HasSuffix(k, ":hits")
}

// Stats reads the global lookup counters.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	vals, err := c.rdb.MGet(ctx, c.statsKey("exact_hits"), c.statsKey("relaxed_hits"), c.statsKey("misses")).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("read cache stats: %w", err)
	}
	parse := func(v interface{}) int64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	return Stats{ExactHits: parse(vals[0]), RelaxedHits: parse(vals[1]), Misses: parse(vals[2])}, nil
}
