package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"nvision.io/internal/auth"
	"nvision.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Record writes an audit log entry outside of any request context. Used by
// the security guard, whose events are not tied to a single handler.
func Record(event string, fields map[string]any) {
	writeEntry("", "", event, fields)
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	requestID := requestIDFromContext(ctx)
	userID, _ := auth.UserIDFromContext(ctx)
	writeEntry(requestID, userID, event, fields)
	return nil
}

func writeEntry(requestID, userID, event string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if requestID != "" {
		entry["request_id"] = requestID
	}
	if userID != "" {
		entry["user_id"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		obs.Logger().Println(`{"ts":"error","level":"error","msg":"audit marshal failed"}`)
		return
	}
	obs.Logger().Println(string(data))
}
