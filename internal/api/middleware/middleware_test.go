package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

func init() { gin.SetMode(gin.TestMode) }

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/who", func(c *gin.Context) { c.String(http.StatusOK, AuthID(c)) })
	return r
}

func TestJWTAuth(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "auth|alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid), http.StatusOK, "auth|alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), valid), http.StatusUnauthorized, ""},
		{"wrong alg", "Bearer " + sign(t, jwt.SigningMethodHS384, []byte(testSecret), valid), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject: "auth|alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}), http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), http.StatusUnauthorized, ""},
	}
	r := authRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyRequestID)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(0, 0))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Sentry(), Recovery(), Logger(), Metrics())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
