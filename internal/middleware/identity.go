// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

const (
	UserIDHeader   = "X-User-ID"
	AnonIDHeader   = "X-Anon-ID"
	AnonCookieName = "enoki_anon_id"
	maxIDLength    = 128
	anonCookieAge  = 365 * 24 * 60 * 60
)

type identityKey struct{}

// Identity 解析请求方身份。认证由前置网关完成并通过 X-User-ID 传入；
// 否则使用 X-Anon-ID 或匿名 cookie，都没有时签发新的匿名 id。
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chat.Identity{
			UserID: cleanID(r.Header.Get(UserIDHeader)),
			AnonID: cleanID(r.Header.Get(AnonIDHeader)),
		}
		if id.AnonID == "" {
			if c, err := r.Cookie(AnonCookieName); err == nil {
				id.AnonID = cleanID(c.Value)
			}
		}
		if !id.Authenticated() && id.AnonID == "" {
			id.AnonID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     AnonCookieName,
				Value:    id.AnonID,
				Path:     "/",
				MaxAge:   anonCookieAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity resolved by Identity.
func IdentityFrom(ctx context.Context) chat.Identity {
	id, _ := ctx.Value(identityKey{}).(chat.Identity)
	return id
}

func cleanID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxIDLength {
		return ""
	}
	return id
}
