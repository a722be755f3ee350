package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trackd/internal/auth"
	"trackd/internal/config"
)

var cfg = config.AuthConfig{JWTSecretKey: "secret", JWTExpiry: time.Hour, CookieName: "trackd_session"}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetUserIDFromContext(r.Context())
		email, _ := GetEmailFromContext(r.Context())
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok || claims.ID == "" {
			http.Error(w, "no claims", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(id + "|" + email))
	})
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	h := AuthMiddleware(cfg, nil)(echoUser())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/watchlist", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"success":false`) || !strings.Contains(body, `"error":"Not authenticated"`) {
		t.Errorf("body = %s", body)
	}
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	h := AuthMiddleware(cfg, nil)(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsCookieAndBearer(t *testing.T) {
	token, _, err := auth.GenerateToken("u1", "u1@example.com", cfg)
	if err != nil {
		t.Fatal(err)
	}
	h := AuthMiddleware(cfg, nil)(echoUser())

	withCookie := httptest.NewRequest(http.MethodGet, "/", nil)
	withCookie.AddCookie(&http.Cookie{Name: "trackd_session", Value: token})
	withBearer := httptest.NewRequest(http.MethodGet, "/", nil)
	withBearer.Header.Set("Authorization", "Bearer "+token)

	for name, req := range map[string]*http.Request{"cookie": withCookie, "bearer": withBearer} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "u1|u1@example.com" {
			t.Errorf("%s: status=%d body=%q", name, rec.Code, rec.Body.String())
		}
	}
}
