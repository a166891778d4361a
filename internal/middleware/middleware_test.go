package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ipg-server/internal/auth"
	"ipg-server/internal/shared/config"
	"ipg-server/internal/shared/cookies"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	prev := config.GlobalConfig
	config.GlobalConfig = &config.Config{
		Auth:     config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", TokenExpiration: time.Hour},
		Frontend: config.FrontendConfig{URL: "http://localhost:3000"},
	}
	t.Cleanup(func() { config.GlobalConfig = prev })
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2, Enabled: true})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/maps", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want 429", code)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, Enabled: true})
	rl.getLimiter("10.0.0.1").Allow()

	rl.cleanupClients(time.Now())
	if len(rl.clients) != 1 {
		t.Fatalf("active client dropped")
	}

	rl.cleanupClients(time.Now().Add(10 * time.Second))
	if len(rl.clients) != 0 {
		t.Errorf("idle client kept")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.168.1.1:12345", nil, false, "192.168.1.1"},
		{"ignores proxy headers", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "1.2.3.4"}, false, "192.168.1.1"},
		{"forwarded for", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, true, "1.2.3.4"},
		{"real ip", "192.168.1.1:12345", map[string]string{"X-Real-IP": "9.9.9.9"}, true, "9.9.9.9"},
		{"no port", "pipe", nil, false, "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	setTestConfig(t)

	var seen *auth.Claims
	handler := OptionalJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
	}))

	token, err := auth.GenerateJWT("Ada", "", "guest:1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		cookie   string
		wantName string
	}{
		{"anonymous", "", ""},
		{"invalid cookie", "garbage", ""},
		{"valid cookie", token, "Ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookies.AuthCookieName, Value: tt.cookie})
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			got := ""
			if seen != nil {
				got = seen.Name
			}
			if got != tt.wantName {
				t.Errorf("claims name = %q, want %q", got, tt.wantName)
			}
		})
	}
}

func TestCORS_AllowsFrontend(t *testing.T) {
	setTestConfig(t)

	handler := NewCORS().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/maps", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
}
