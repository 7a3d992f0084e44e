package guard

import (
	"nvision.io/internal/obs"
)

// CreateSecureSession stores a new active session for the user and returns
// its opaque token.
func (g *Guard) CreateSecureSession(userID, clientIP, userAgent string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	now := g.now()

	g.sessMu.Lock()
	g.sessions[token] = &session{
		UserID:       userID,
		ClientIP:     clientIP,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	obs.ActiveSessions.Set(float64(len(g.sessions)))
	g.sessMu.Unlock()

	g.recordEvent(EventSessionCreated, clientIP, userID, map[string]string{
		"user_agent": userAgent,
	})
	return token, nil
}

// ValidateSession checks the session and slides its activity window. It
// returns the owning user id on success. A timed-out session is removed; an
// IP mismatch is treated as a hijack attempt and invalidates the session, so
// a retry from the original IP also fails. The user agent is recorded but
// not compared.
func (g *Guard) ValidateSession(token, clientIP, userAgent string) (string, bool) {
	now := g.now()

	g.sessMu.Lock()
	sess, ok := g.sessions[token]
	if !ok || !sess.IsActive {
		g.sessMu.Unlock()
		return "", false
	}

	if now.After(sess.LastActivity.Add(g.sessionTimeout)) {
		sess.IsActive = false
		delete(g.sessions, token)
		obs.ActiveSessions.Set(float64(len(g.sessions)))
		userID := sess.UserID
		g.sessMu.Unlock()

		g.recordEvent(EventSessionInvalidated, clientIP, userID, map[string]string{
			"reason": "timeout",
		})
		return "", false
	}

	if sess.ClientIP != clientIP {
		sess.IsActive = false
		delete(g.sessions, token)
		obs.ActiveSessions.Set(float64(len(g.sessions)))
		userID := sess.UserID
		expectedIP := sess.ClientIP
		g.sessMu.Unlock()

		g.recordEvent(EventSessionHijackAttempt, clientIP, userID, map[string]string{
			"expected_ip": expectedIP,
			"user_agent":  userAgent,
		})
		return "", false
	}

	sess.LastActivity = now
	userID := sess.UserID
	g.sessMu.Unlock()
	return userID, true
}

// InvalidateSession removes the session. This is the explicit logout path.
func (g *Guard) InvalidateSession(token string) {
	g.sessMu.Lock()
	sess, ok := g.sessions[token]
	if !ok {
		g.sessMu.Unlock()
		return
	}
	sess.IsActive = false
	delete(g.sessions, token)
	obs.ActiveSessions.Set(float64(len(g.sessions)))
	userID := sess.UserID
	clientIP := sess.ClientIP
	g.sessMu.Unlock()

	g.recordEvent(EventSessionInvalidated, clientIP, userID, map[string]string{
		"reason": "logout",
	})
}

// ActiveSessionCount returns the number of live sessions.
func (g *Guard) ActiveSessionCount() int {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()
	return len(g.sessions)
}
