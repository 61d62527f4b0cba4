package auth

import (
	"net/http"
	"strings"
	"time"

	loggerpkg "IntentLane/pkg/logger"
)

// Middleware 返回一个 HTTP 中间件：校验 API 凭证并记录审计日志。
// 认证未启用时仅记录请求。凭证通过 Authorization: Bearer 或
// X-API-Key 头携带。
func (s *Service) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := ""
			if s.Enabled() {
				name, err := s.Authenticate(extractKey(r))
				if err != nil {
					status := http.StatusUnauthorized
					http.Error(w, http.StatusText(status), status)
					loggerpkg.Audit().Warn("access_denied",
						"path", r.URL.Path,
						"method", r.Method,
						"status", status,
						"error", err.Error(),
					)
					return
				}
				caller = name
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			ctx := WithCaller(r.Context(), caller)
			next.ServeHTTP(aw, r.WithContext(ctx))
			loggerpkg.Audit().Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"caller", caller,
			)
		})
	}
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
