package guard

import (
	"strings"

	"nvision.io/internal/obs"
)

// Cleanup prunes expired rate-limit history, expired blocklist entries,
// stale failure records and stale suspicious-IP flags. It runs hourly from
// the background sweep and may be called directly.
func (g *Guard) Cleanup() {
	now := g.now()

	g.rateMu.Lock()
	for key, ts := range g.history {
		window := g.failureWindow
		// History keys end in the endpoint class; prune by its window.
		if idx := strings.LastIndexByte(key, ':'); idx >= 0 {
			if rule, ok := g.rules[key[idx+1:]]; ok {
				window = rule.Window
			}
		}
		kept := pruneBefore(ts, now.Add(-window))
		if len(kept) == 0 {
			delete(g.history, key)
			continue
		}
		g.history[key] = kept
	}
	for key, until := range g.blocklist {
		if !now.Before(until) {
			delete(g.blocklist, key)
		}
	}
	obs.BlockedClients.Set(float64(len(g.blocklist)))
	g.rateMu.Unlock()

	cutoff := now.Add(-g.failureWindow)
	g.failMu.Lock()
	for ip, ts := range g.failedByIP {
		kept := pruneBefore(ts, cutoff)
		if len(kept) == 0 {
			delete(g.failedByIP, ip)
			continue
		}
		g.failedByIP[ip] = kept
	}
	for user, ts := range g.failedByUser {
		kept := pruneBefore(ts, cutoff)
		if len(kept) == 0 {
			delete(g.failedByUser, user)
			continue
		}
		g.failedByUser[user] = kept
	}
	for ip, flagged := range g.suspicious {
		if flagged.Before(cutoff) {
			delete(g.suspicious, ip)
		}
	}
	g.failMu.Unlock()

	g.sessMu.Lock()
	for token, sess := range g.sessions {
		if now.After(sess.LastActivity.Add(g.sessionTimeout)) {
			delete(g.sessions, token)
		}
	}
	obs.ActiveSessions.Set(float64(len(g.sessions)))
	g.sessMu.Unlock()
}
