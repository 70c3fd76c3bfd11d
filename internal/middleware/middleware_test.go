package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/anythought/internal/config"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/service"
)

type validatorFunc func(ctx context.Context, token string) (model.User, model.Session, error)

func (f validatorFunc) ValidateRequest(ctx context.Context, token string) (model.User, model.Session, error) {
	return f(ctx, token)
}

func onlyToken(want string) validatorFunc {
	return func(_ context.Context, token string) (model.User, model.Session, error) {
		if token != want {
			return model.User{}, model.Session{}, service.ErrUnauthorized
		}
		return model.User{ID: "u1", Username: "alice"}, model.Session{ID: "s1", UserID: "u1"}, nil
	}
}

func whoami(c echo.Context) error {
	u, ok := CurrentUser(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "no user")
	}
	return c.String(http.StatusOK, u.ID+" "+CurrentToken(c))
}

func TestSessionAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, SessionAuth(onlyToken("good")))

	cases := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "good"}) }, http.StatusOK, "u1 good"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "u1 good"},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status: want %d, got %d", tc.wantCode, rec.Code)
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Fatalf("body: want %q, got %q", tc.wantBody, rec.Body.String())
			}
		})
	}
}

func TestSessionAuthPassesStoreFailuresOn(t *testing.T) {
	e := echo.New()
	var seen error
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		seen = err
		_ = c.NoContent(http.StatusServiceUnavailable)
	}
	boom := errors.New("redis down")
	e.GET("/me", whoami, SessionAuth(validatorFunc(func(context.Context, string) (model.User, model.Session, error) {
		return model.User{}, model.Session{}, boom
	})))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable || !errors.Is(seen, boom) {
		t.Fatalf("want store failure forwarded, got %d %v", rec.Code, seen)
	}
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb, nil))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Fatal("blocked response must carry Retry-After")
		}
	}
	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: want %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want request let through, got %d", rec.Code)
	}
}
