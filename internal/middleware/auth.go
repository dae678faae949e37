package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/service/auth"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

type contextKey string

const claimsKey contextKey = "admin_claims"

// TokenVerifier 校验管理员访问令牌
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BearerToken 提取 Authorization: Bearer 后的令牌
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// AnonKey 要求请求携带匿名密钥。浏览器 websocket 无法设置请求头，
// 因此也接受 apikey 查询参数。
func AnonKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidates := []string{
				r.Header.Get("apikey"),
				r.URL.Query().Get("apikey"),
				BearerToken(r),
			}
			for _, c := range candidates {
				if c != "" && subtle.ConstantTimeCompare([]byte(c), expected) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
		})
	}
}

// AdminAuth 要求有效的管理员令牌，并把 claims 放入 context
func AdminAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext 返回 AdminAuth 写入的 claims
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// RequestLogger 把 chi 的 request id 绑定到结构化日志
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
