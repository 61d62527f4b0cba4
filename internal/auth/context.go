package auth

import "context"

// callerKey 是上下文中存储调用方名称的键类型。
type callerKey struct{}

// WithCaller 将通过认证的调用方名称存储到上下文中。
func WithCaller(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, name)
}

// CallerFromContext 从上下文中提取调用方名称，未认证时返回空串。
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if name, ok := ctx.Value(callerKey{}).(string); ok {
		return name
	}
	return ""
}
