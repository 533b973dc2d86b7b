package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/vrsandeep/litpush/internal/models"
)

// Params is everything besides the query text that shapes a search result.
type Params struct {
	LookbackDays int
	MaxResults   int
	Filters      models.QualityFilters
}

// ParamsFor extracts the cache parameters of a subscription.
func ParamsFor(sub *models.Subscription) Params {
	return Params{
		LookbackDays: sub.LookbackDays,
		MaxResults:   sub.MaxResults,
		Filters:      sub.Filters,
	}
}

// NormalizeQuery trims, collapses inner whitespace and case-folds q.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// stableParams fixes field order and sorts set-like slices so equal
// parameter sets always serialize to the same bytes.
type stableParams struct {
	LookbackDays    int      `json:"lookback_days"`
	MaxResults      int      `json:"max_results"`
	Quartiles       []string `json:"quartiles"`
	MinImpactFactor float64  `json:"min_impact_factor"`
	Categories      []string `json:"categories"`
	TopOnly         bool     `json:"top_only"`
	RequireISSN     bool     `json:"require_issn"`
}

func sortedCopy(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// FilterHash returns the hex digest of the stable serialization of p.
func FilterHash(p Params) string {
	b, _ := json.Marshal(stableParams{
		LookbackDays:    p.LookbackDays,
		MaxResults:      p.MaxResults,
		Quartiles:       sortedCopy(p.Filters.Quartiles),
		MinImpactFactor: p.Filters.MinImpactFactor,
		Categories:      sortedCopy(p.Filters.Categories),
		TopOnly:         p.Filters.TopOnly,
		RequireISSN:     p.Filters.RequireISSN,
	})
	return digest(string(b))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) relaxedKey(query string) string {
	return c.prefix + ":relaxed:" + digest(NormalizeQuery(query))
}

func (c *Cache) exactKey(query string, p Params) string {
	return c.exactPrefix(query) + FilterHash(p)
}

func (c *Cache) exactPrefix(query string) string {
	return c.prefix + ":exact:" + digest(NormalizeQuery(query)) + ":"
}

func (c *Cache) statsKey(name string) string {
	return c.prefix + ":stats:" + name
}

func hitsKey(key string) string {
	return key + ":hits"
}
