package audit

import (
	"context"
	"strings"
)

// RequestContext carries the caller-supplied request facts that end up on
// every audit entry: who, from which device and app, and from where. The
// logger depends on it but never computes it.
type RequestContext struct {
	UserID    string
	DeviceID  string
	AppID     string
	IPAddress string
}

type requestContextKey struct{}

// WithRequestContext attaches the request facts to the context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	rc.UserID = strings.TrimSpace(rc.UserID)
	rc.DeviceID = strings.TrimSpace(rc.DeviceID)
	rc.AppID = strings.TrimSpace(rc.AppID)
	rc.IPAddress = strings.TrimSpace(rc.IPAddress)
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the request facts if present.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
