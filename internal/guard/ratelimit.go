package guard

import (
	"fmt"
	"strings"
	"time"

	"nvision.io/internal/obs"
)

// CheckRateLimit applies the sliding-window rule for the endpoint class to
// the caller, keyed by user when authenticated and by client otherwise.
// Unknown endpoint classes are allowed through: throttling fails open.
// The returned message is human-readable and only set on rejection.
func (g *Guard) CheckRateLimit(clientKey, endpoint, userID string) (bool, string) {
	rule, ok := g.rules[endpoint]
	if !ok {
		return true, ""
	}

	identity := "client:" + clientKey
	if strings.TrimSpace(userID) != "" {
		identity = "user:" + userID
	}
	key := identity + ":" + endpoint
	now := g.now()

	g.rateMu.Lock()
	defer g.rateMu.Unlock()

	// A standing block on the client (rate abuse or brute force) wins over
	// any per-endpoint counting.
	for _, blockKey := range []string{key, "ip:" + clientKey} {
		until, blocked := g.blocklist[blockKey]
		if !blocked {
			continue
		}
		if now.Before(until) {
			retry := int(until.Sub(now).Seconds()) + 1
			return false, fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retry)
		}
		delete(g.blocklist, blockKey)
	}

	kept := pruneBefore(g.history[key], now.Add(-rule.Window))
	if len(kept) >= rule.MaxRequests {
		g.history[key] = kept
		g.blocklist[key] = now.Add(rule.BlockDuration)
		obs.RateLimitRejections.WithLabelValues(endpoint).Inc()
		obs.BlockedClients.Set(float64(len(g.blocklist)))
		g.recordEvent(EventRateLimitExceeded, clientKey, userID, map[string]string{
			"endpoint": endpoint,
			"requests": fmt.Sprintf("%d", len(kept)),
			"window":   rule.Window.String(),
		})
		retry := int(rule.BlockDuration.Seconds())
		return false, fmt.Sprintf("Rate limit exceeded for %s. Retry after %d seconds.", endpoint, retry)
	}

	g.history[key] = append(kept, now)
	return true, ""
}

// IsBlocked reports whether the client key currently sits on the blocklist.
func (g *Guard) IsBlocked(clientKey string) bool {
	now := g.now()

	g.rateMu.Lock()
	defer g.rateMu.Unlock()

	until, ok := g.blocklist["ip:"+clientKey]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(g.blocklist, "ip:"+clientKey)
	return false
}

// pruneBefore drops timestamps at or before the cutoff, preserving order.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(ts) && !ts[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return ts
	}
	return append(ts[:0:0], ts[idx:]...)
}
