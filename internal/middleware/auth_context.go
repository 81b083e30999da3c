package middleware

import "context"

type contextKey string

const AdminContextKey contextKey = "admin_context"

// AdminContext identifies the authenticated dashboard operator.
type AdminContext struct {
	Username string
	TokenID  string // jti
}

func GetAdminContext(ctx context.Context) (*AdminContext, bool) {
	val, ok := ctx.Value(AdminContextKey).(*AdminContext)
	return val, ok
}

func WithAdminContext(ctx context.Context, ac *AdminContext) context.Context {
	return context.WithValue(ctx, AdminContextKey, ac)
}
