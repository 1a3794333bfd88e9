package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/geocoder89/holocron/internal/auth"
	"github.com/geocoder89/holocron/internal/db"
	apphttp "github.com/geocoder89/holocron/internal/http"
	"github.com/geocoder89/holocron/internal/http/handlers"
	"github.com/geocoder89/holocron/internal/observability"
	"github.com/geocoder89/holocron/internal/repo/postgres"
	"github.com/geocoder89/holocron/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupAuthTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  "integration-access",
		RefreshSecret: "integration-refresh",
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	prom := observability.NewProm(prometheus.NewRegistry())
	store := postgres.NewUsersRepo(pool, prom)
	svc := auth.NewService(store, issuer, security.NewHasher(bcrypt.MinCost), auth.WithLogger(logger), auth.WithRecorder(prom))

	router := apphttp.NewRouter(logger, apphttp.Deps{
		Auth:    svc,
		Store:   store,
		Prom:    prom,
		Cookies: handlers.CookieOptions{MaxAge: issuer.RefreshTTL()},
	})

	resetAuthDB(t, pool)
	t.Cleanup(func() { resetAuthDB(t, pool) })

	return router, pool
}

func resetAuthDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE users`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// helpers

func extractRefreshCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == handlers.RefreshCookieName {
			return c
		}
	}

	t.Fatalf("refreshToken cookie not found in response")

	return nil
}

// doRequest runs a request and returns the recorder plus the parsed response for cookies.
func doRequest(router http.Handler, method, path string, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if w.Code != status {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, status, w.Body.String())
	}

	var e apiErrorResponse
	mustReadJSON(t, w, &e)
	if e.Error.Code != code {
		t.Fatalf("expected %s, got %s", code, e.Error.Code)
	}
}

func TestAuthIntegration_Register_Login_Refresh_Reuse_Logout(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/register", `{"email":"sam@example.com","password":"password123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	w, response := doRequest(router, http.MethodPost, "/api/v1/auth/login", `{"email":"sam@example.com","password":"password123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	loginRefresh := extractRefreshCookie(t, response)

	// REFRESH (happy path)
	w2, response2 := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", loginRefresh)
	if w2.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want %d, body=%s", w2.Code, http.StatusOK, w2.Body.String())
	}
	rotatedRefresh := extractRefreshCookie(t, response2)

	// new cookie keeps working
	w3, response3 := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", rotatedRefresh)
	if w3.Code != http.StatusOK {
		t.Fatalf("refresh(new cookie) got status %d, want %d, body=%s", w3.Code, http.StatusOK, w3.Body.String())
	}
	current := extractRefreshCookie(t, response3)

	// LOGOUT revokes and clears the cookie
	w4, response4 := doRequest(router, http.MethodPost, "/api/v1/auth/logout", "", current)
	if w4.Code != http.StatusOK {
		t.Fatalf("logout got status %d, want %d, body=%s", w4.Code, http.StatusOK, w4.Body.String())
	}

	cleared := false
	for _, c := range response4.Cookies() {
		if c.Name == handlers.RefreshCookieName && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected logout to clear refresh cookie")
	}

	w5, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", current)
	expectCode(t, w5, http.StatusForbidden, "session_revoked")
}

func TestAuthIntegration_ReuseDetection(t *testing.T) {
	router, pool := setupAuthTestRouter(t)

	doRequest(router, http.MethodPost, "/api/v1/auth/register", `{"email":"kim@example.com","password":"password123"}`)
	_, response := doRequest(router, http.MethodPost, "/api/v1/auth/login", `{"email":"kim@example.com","password":"password123"}`)
	old := extractRefreshCookie(t, response)

	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", old)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, body=%s", w.Code, w.Body.String())
	}

	w, _ = doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", old)
	expectCode(t, w, http.StatusForbidden, "refresh_reuse_detected")

	var hash *string
	err := pool.QueryRow(context.Background(), `SELECT refresh_token_hash FROM users WHERE email = $1`, "kim@example.com").Scan(&hash)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hash != nil {
		t.Fatalf("expected refresh hash to be cleared after reuse")
	}
}

func TestAuthIntegration_ConcurrentRefreshSingleWinner(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	doRequest(router, http.MethodPost, "/api/v1/auth/register", `{"email":"race@example.com","password":"password123"}`)
	_, response := doRequest(router, http.MethodPost, "/api/v1/auth/login", `{"email":"race@example.com","password":"password123"}`)
	cookie := extractRefreshCookie(t, response)

	const n = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", cookie)
			if w.Code == http.StatusOK {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins > 1 {
		t.Fatalf("%d concurrent refreshes succeeded with the same token", wins)
	}
}

func TestAuthIntegration_Refresh_MissingCookie(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "")
	expectCode(t, w, http.StatusUnauthorized, "no_refresh")
}

func TestAuthIntegration_Login_InvalidCredentials(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	// no user created
	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/login", `{"email":"nope@example.com","password":"wrong"}`)
	expectCode(t, w, http.StatusUnauthorized, "invalid_credentials")
}

func TestAuthIntegration_DuplicateRegister(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	body := `{"email":"dup@example.com","password":"password123"}`
	doRequest(router, http.MethodPost, "/api/v1/auth/register", body)

	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/register", body)
	expectCode(t, w, http.StatusBadRequest, "user_exists")
}
