package guard

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenerateCSRFToken returns "<hex digest>:<unix timestamp>" where the digest
// is a keyed hash binding the session token to the issue time.
func (g *Guard) GenerateCSRFToken(sessionToken string) string {
	ts := g.now().Unix()
	return g.csrfDigest(sessionToken, ts) + ":" + strconv.FormatInt(ts, 10)
}

// ValidateCSRFToken checks age and digest. A zero maxAge uses the configured
// default. Fails closed on any malformed input.
func (g *Guard) ValidateCSRFToken(csrfToken, sessionToken string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = g.csrfMaxAge
	}

	idx := strings.LastIndexByte(csrfToken, ':')
	if idx <= 0 || idx == len(csrfToken)-1 {
		return false
	}
	digest := csrfToken[:idx]
	ts, err := strconv.ParseInt(csrfToken[idx+1:], 10, 64)
	if err != nil {
		return false
	}
	if g.now().Sub(time.Unix(ts, 0)) > maxAge {
		return false
	}

	expected := g.csrfDigest(sessionToken, ts)
	return hmac.Equal([]byte(digest), []byte(expected))
}

func (g *Guard) csrfDigest(sessionToken string, ts int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s:%d", sessionToken, ts)
	return hex.EncodeToString(mac.Sum(nil))
}
