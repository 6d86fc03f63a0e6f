package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const testSecret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T, singleDevice bool) (*service.AuthService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return service.NewAuthService(&config.Config{JWTSecret: testSecret, SingleDeviceSessions: singleDevice}, rdb), mr
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func protectedRouter(auth *service.AuthService, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{RequireStudentJWT(auth)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"student": GetClaims(c).UserID})
	})
	r.GET("/p", chain...)
	return r
}

func TestRequireStudentJWT(t *testing.T) {
	auth, _ := newAuth(t, false)
	r := protectedRouter(auth)

	token, _, err := auth.GenerateStudentToken(11, 2, time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"student":11}`, w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, response.ErrTokenRequired, errorCode(t, w))
	})

	t.Run("expired", func(t *testing.T) {
		expired, _, err := auth.GenerateStudentToken(11, 2, -time.Minute)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+expired, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, response.ErrTokenExpired, errorCode(t, w))
	})

	t.Run("garbage", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token=nope", nil))
		assert.Equal(t, response.ErrTokenInvalid, errorCode(t, w))
	})

	t.Run("admin token", func(t *testing.T) {
		claims := service.Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			TokenType:        service.TokenTypeAdmin,
			UserID:           1,
		}
		admin, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+admin, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, response.ErrStudentAccessOnly, errorCode(t, w))
	})
}

func TestCheckSingleDeviceSession(t *testing.T) {
	auth, mr := newAuth(t, true)
	r := protectedRouter(auth, CheckSingleDeviceSession(auth))

	token, jti, err := auth.GenerateStudentToken(11, 2, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+token, nil))
	assert.Equal(t, response.ErrNoActiveLogin, errorCode(t, w))

	require.NoError(t, mr.Set(config.CacheKey.StudentSessionKey(11), jti))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, mr.Set(config.CacheKey.StudentSessionKey(11), "newer-login"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrSessionInvalidated, errorCode(t, w))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/u", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/u", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, hit())
	assert.Equal(t, http.StatusNoContent, hit())
	assert.Equal(t, http.StatusTooManyRequests, hit())

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, hit())

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("jawaban ", 512)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("compresses large bodies", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/big", nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
		plain, err := io.ReadAll(brotli.NewReader(w.Body))
		require.NoError(t, err)
		assert.Equal(t, big, string(plain))
	})

	t.Run("passes small bodies through", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/small", nil)
		req.Header.Set("Accept-Encoding", "br")
		r.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("ignores clients without br", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/big", nil))
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, big, w.Body.String())
	})
}
