package guard

import (
	"fmt"

	"nvision.io/internal/obs"
)

// RecordFailedLogin appends a failure timestamp to the per-IP and
// per-username trailing windows. Reaching the suspicious threshold flags the
// IP; reaching the lockout threshold blocks it for the configured duration.
func (g *Guard) RecordFailedLogin(ip, username string) {
	now := g.now()
	cutoff := now.Add(-g.failureWindow)

	g.failMu.Lock()
	ipAttempts := append(pruneBefore(g.failedByIP[ip], cutoff), now)
	g.failedByIP[ip] = ipAttempts
	if username != "" {
		g.failedByUser[username] = append(pruneBefore(g.failedByUser[username], cutoff), now)
	}
	count := len(ipAttempts)

	newlySuspicious := false
	if count >= g.suspiciousThreshold {
		if _, flagged := g.suspicious[ip]; !flagged {
			g.suspicious[ip] = now
			newlySuspicious = true
		}
	}
	blocked := count >= g.maxFailedAttempts
	g.failMu.Unlock()

	obs.FailedLogins.Inc()

	if newlySuspicious {
		g.recordEvent(EventSuspiciousActivity, ip, "", map[string]string{
			"username": username,
			"attempts": fmt.Sprintf("%d", count),
		})
	}
	if blocked {
		g.rateMu.Lock()
		g.blocklist["ip:"+ip] = now.Add(g.blockDuration)
		obs.BlockedClients.Set(float64(len(g.blocklist)))
		g.rateMu.Unlock()

		if count == g.maxFailedAttempts {
			g.recordEvent(EventBruteForceAttack, ip, "", map[string]string{
				"username": username,
				"attempts": fmt.Sprintf("%d", count),
				"blocked":  g.blockDuration.String(),
			})
		}
	}
}

// ClearFailedAttempts drops both failure lists and any suspicious flag for
// the pair. Called on successful login.
func (g *Guard) ClearFailedAttempts(ip, username string) {
	g.failMu.Lock()
	delete(g.failedByIP, ip)
	delete(g.failedByUser, username)
	delete(g.suspicious, ip)
	g.failMu.Unlock()
}

// FailedAttempts returns the current in-window failure count for an IP.
func (g *Guard) FailedAttempts(ip string) int {
	cutoff := g.now().Add(-g.failureWindow)

	g.failMu.Lock()
	defer g.failMu.Unlock()

	kept := pruneBefore(g.failedByIP[ip], cutoff)
	if len(kept) == 0 {
		delete(g.failedByIP, ip)
		return 0
	}
	g.failedByIP[ip] = kept
	return len(kept)
}

// IsSuspicious reports whether the IP has been flagged for unusual failure
// volume.
func (g *Guard) IsSuspicious(ip string) bool {
	g.failMu.Lock()
	defer g.failMu.Unlock()
	_, ok := g.suspicious[ip]
	return ok
}
