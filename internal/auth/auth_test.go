package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kompetisi/internal/access"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "kompetisi"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("user-1", access.RoleInstructor, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	p, ok := claims.Principal()
	require.True(t, ok)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, access.RoleInstructor, p.Role)
}

func TestParseRejects(t *testing.T) {
	tok, err := Issue("user-1", access.RoleAdmin, testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tok.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(tok.AccessToken, testKey, "someone-else")
	assert.Error(t, err)

	expired, err := Issue("user-1", access.RoleAdmin, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Subject: "x", Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = Parse(none, testKey, "")
	assert.Error(t, err)

	_, err = Issue("user-1", access.RoleAdmin, testIssuer, "", time.Hour)
	assert.Error(t, err)
}

func TestClaimsPrincipalUnknownRole(t *testing.T) {
	_, ok := Claims{Subject: "u", Role: "superuser"}.Principal()
	assert.False(t, ok)
	_, ok = Claims{Role: "admin"}.Principal()
	assert.False(t, ok)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, string(p.Role)+":"+p.ID)
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, role access.Role) string {
	t.Helper()
	tok, err := Issue("u-"+string(role), role, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.AccessToken
}

func TestRequired(t *testing.T) {
	r := newRouter(Required(testKey, testIssuer))

	tests := []struct {
		authz   string
		wantMsg string
	}{
		{authz: "", wantMsg: "token akses wajib disertakan"},
		{authz: "Basic Zm9vOmJhcg==", wantMsg: "token akses wajib disertakan"},
		{authz: "Bearer garbage", wantMsg: "token akses tidak valid"},
	}
	for _, tc := range tests {
		w := do(r, tc.authz)
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.authz)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.wantMsg, body["error"])
		assert.Equal(t, "authorization", body["code"])
	}

	w := do(r, bearer(t, access.RoleStudent))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student:u-student", w.Body.String())
}

func TestOptional(t *testing.T) {
	r := newRouter(Optional(testKey, testIssuer))

	w := do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer garbage").Code)

	w = do(r, bearer(t, access.RoleAdmin))
	assert.Equal(t, "admin:u-admin", w.Body.String())
}

func TestRequireCapability(t *testing.T) {
	r := newRouter(Optional(testKey, testIssuer), RequireCapability(access.CapReview))

	assert.Equal(t, http.StatusForbidden, do(r, "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, bearer(t, access.RoleStudent)).Code)
	assert.Equal(t, http.StatusOK, do(r, bearer(t, access.RoleInstructor)).Code)
	assert.Equal(t, http.StatusOK, do(r, bearer(t, access.RoleAdmin)).Code)
}
