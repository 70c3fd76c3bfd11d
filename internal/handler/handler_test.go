package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/middleware"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/service"
	"github.com/iliyamo/anythought/internal/utils"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.Wrap(repository.ErrPostNotFound, "id p1"), http.StatusNotFound},
		{"username taken", repository.ErrUsernameTaken, http.StatusConflict},
		{"conflict", errors.Wrap(repository.ErrConflict, "request is accepted"), http.StatusConflict},
		{"forbidden", errors.Wrap(repository.ErrForbidden, "post p1"), http.StatusForbidden},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized},
		{"invalid", errors.Wrap(service.ErrInvalidArgument, "mode"), http.StatusBadRequest},
		{"connection lost", &liveness.ConnectionLostError{Store: "redis", Cause: errors.New("eof")}, http.StatusServiceUnavailable},
		{"db connection", &database.Error{Kind: database.ConnectionError, Cause: errors.New("bad conn")}, http.StatusServiceUnavailable},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid body"), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, _ := statusFor(tc.err); got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

type memSessions struct {
	byID map[string]model.Session
}

func (m *memSessions) Create(_ context.Context, token, userID string) (model.Session, error) {
	s := model.Session{ID: utils.SessionID(token), UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
	m.byID[s.ID] = s
	return s, nil
}

func (m *memSessions) Get(_ context.Context, token string) (model.Session, error) {
	s, ok := m.byID[utils.SessionID(token)]
	if !ok {
		return model.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) Refresh(_ context.Context, id string) (model.Session, error) {
	return m.byID[id], nil
}

func (m *memSessions) Del(_ context.Context, _ string, token string) error {
	delete(m.byID, utils.SessionID(token))
	return nil
}

func (m *memSessions) DelAll(context.Context, string) (int, error) {
	n := len(m.byID)
	m.byID = map[string]model.Session{}
	return n, nil
}

func newTestServer(t *testing.T) (*echo.Echo, *memSessions) {
	t.Helper()
	salt := "salt"
	alice := model.AuthUser{
		User:     model.User{ID: "u-alice", Username: "alice", Name: "Alice"},
		Password: utils.HashPassword("correct horse", salt),
		Salt:     salt,
	}
	users := &repository.UserRepo{
		FindAuthByUsername: func(_ context.Context, name string) (model.AuthUser, error) {
			if name != alice.Username {
				return model.AuthUser{}, repository.ErrUserNotFound
			}
			return alice, nil
		},
		FindByID: func(_ context.Context, id string) (model.User, error) {
			if id != alice.ID {
				return model.User{}, repository.ErrUserNotFound
			}
			return alice.User, nil
		},
		Create: func(_ context.Context, u model.AuthUser) (model.User, error) {
			if u.Username == alice.Username {
				return model.User{}, repository.ErrUsernameTaken
			}
			return u.User, nil
		},
	}
	sessions := &memSessions{byID: map[string]model.Session{}}
	auth := service.NewAuthService(users, sessions, nil, time.Minute, nil)

	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(nil)
	a := NewAuthHandler(auth, false)
	session := middleware.SessionAuth(auth)
	e.POST("/signup", a.Signup)
	e.POST("/login", a.Login)
	e.POST("/signout", a.Signout, session)
	return e, sessions
}

func do(e *echo.Echo, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSignup(t *testing.T) {
	e, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"username":"bob","name":"Bob","password":"long enough"}`, http.StatusCreated},
		{"short password", `{"username":"bob","name":"Bob","password":"short"}`, http.StatusBadRequest},
		{"bad email", `{"username":"bob","name":"Bob","email":"nope","password":"long enough"}`, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
		{"taken", `{"username":"alice","name":"Alice","password":"long enough"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(e, http.MethodPost, "/signup", tc.body); rec.Code != tc.want {
				t.Fatalf("want %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLoginThenSignout(t *testing.T) {
	e, sessions := newTestServer(t)

	if rec := do(e, http.MethodPost, "/login", `{"username":"alice","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: want 401, got %d", rec.Code)
	}

	rec := do(e, http.MethodPost, "/login", `{"username":"alice","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.UserID != "u-alice" {
		t.Fatalf("unexpected response %+v", resp)
	}
	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			cookie = ck
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Fatalf("session cookie not set: %+v", cookie)
	}

	rec = do(e, http.MethodPost, "/signout", "", func(r *http.Request) { r.AddCookie(cookie) })
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signout: want 204, got %d", rec.Code)
	}
	if len(sessions.byID) != 0 {
		t.Fatal("session must be gone after signout")
	}
	rec = do(e, http.MethodPost, "/signout", "", func(r *http.Request) { r.AddCookie(cookie) })
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token: want 401, got %d", rec.Code)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	cases := []struct {
		name   string
		db, kv Pinger
		want   int
	}{
		{"both up", up, up, http.StatusOK},
		{"database down", down, up, http.StatusServiceUnavailable},
		{"redis down", up, down, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/healthz", NewHealthHandler(tc.db, tc.kv).Health)
			if rec := do(e, http.MethodGet, "/healthz", ""); rec.Code != tc.want {
				t.Fatalf("want %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
