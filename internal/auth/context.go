package auth

import "context"

type ctxKey string

const clientKey ctxKey = "client"

// ClientInfo describes the caller of a session operation, for the audit trail.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithClient stores caller details on ctx.
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, info)
}

// ClientFromContext returns the caller details stored on ctx, or the zero value.
func ClientFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	info, _ := ctx.Value(clientKey).(ClientInfo)
	return info
}
