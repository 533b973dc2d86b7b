package cache

import (
	"math"
	"time"
)

// TTLFor returns how long a result set of count records stored at now stays
// cached. Large result sets live longer; weekday business hours shorten the
// lifetime, nights and weekends extend it. The result is clamped to
// [MinTTL, MaxTTL].
func (c *Cache) TTLFor(count int, now time.Time) time.Duration {
	ttl := float64(c.baseTTL)

	switch {
	case count > 100:
		ttl *= 1.5
	case count > 50:
		ttl *= 1.2
	case count < 10:
		ttl *= 0.8
	}

	local := now.In(c.loc)
	hour := local.Hour()
	weekend := local.Weekday() == time.Saturday || local.Weekday() == time.Sunday
	switch {
	case weekend || hour >= 22 || hour < 6:
		ttl *= 1.5
	case hour >= 8 && hour < 20:
		ttl *= 0.8
	}

	d := time.Duration(math.Round(ttl))
	if c.minTTL > 0 && d < c.minTTL {
		d = c.minTTL
	}
	if c.maxTTL > 0 && d > c.maxTTL {
		d = c.maxTTL
	}
	return d
}
