package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"familyvault/internal/domain"
)

// IdentityContextKey 是存储在 context 中的请求方身份的键。
type IdentityContextKey struct{}

// Identity 是鉴权中间件解析出的请求方信息。
// 核心只信任身份协作方签发的声明，不自己做认证。
type Identity struct {
	ActorID  string
	TenantID string
	Role     domain.UserRole
}

// JWTAuth 创建 JWT 鉴权中间件。
// 支持 HMAC（本地密钥）与 JWKS（远程公钥）两种验签方式，
// 要求 Token 携带 sub / tenant_id / role 三个声明。
func JWTAuth(jwtSecret, jwksURL string) func(http.Handler) http.Handler {
	var jwks *keyfunc.JWKS

	if jwksURL != "" {
		var err error
		// 初始化 JWKS，包含自动刷新
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				fmt.Printf("[AuthError] JWKS refresh failed: %v\n", err)
			},
		})
		if err != nil {
			fmt.Printf("[AuthWarning] JWKS init failed (%s): %v. Falling back to HMAC only.\n", jwksURL, err)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization format, expected: Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "empty token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
					if jwtSecret != "" {
						return []byte(jwtSecret), nil
					}
				}
				if jwks != nil {
					return jwks.Keyfunc(token)
				}
				return nil, fmt.Errorf("no suitable verification method")
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			who, err := identityFromClaims(claims)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey{}, who)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderAuth 从固定请求头读取身份，仅供关闭鉴权的开发模式使用。
func HeaderAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who := Identity{
				ActorID:  strings.TrimSpace(r.Header.Get("X-Actor-ID")),
				TenantID: strings.TrimSpace(r.Header.Get("X-Tenant-ID")),
				Role:     domain.UserRole(strings.TrimSpace(r.Header.Get("X-Actor-Role"))),
			}
			if who.Role == "" {
				who.Role = domain.RolePublicUser
			}
			if who.ActorID == "" || who.TenantID == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing X-Actor-ID or X-Tenant-ID header")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey{}, who)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("token missing sub claim")
	}

	tenantID, _ := claims["tenant_id"].(string)
	if tenantID == "" {
		return Identity{}, fmt.Errorf("token missing tenant_id claim")
	}

	roleRaw, _ := claims["role"].(string)
	role := domain.UserRole(roleRaw)
	switch role {
	case domain.RoleOwner, domain.RoleFamilyMember, domain.RolePublicUser:
	case "":
		role = domain.RolePublicUser
	default:
		return Identity{}, fmt.Errorf("token carries unknown role: %s", roleRaw)
	}

	return Identity{ActorID: sub, TenantID: tenantID, Role: role}, nil
}

// GetIdentity 从 context 中获取经过鉴权的请求方身份。
func GetIdentity(ctx context.Context) (Identity, bool) {
	who, ok := ctx.Value(IdentityContextKey{}).(Identity)
	return who, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="FamilyVault API"`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
