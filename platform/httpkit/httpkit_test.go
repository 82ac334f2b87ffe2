package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticJWT string

func (s staticJWT) GetJWTAccessSecret() string { return string(s) }

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthRequiredExposesTenantIdentity(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":       userID.String(),
		"type":      "access",
		"tenant_id": tenantID.String(),
	})

	engine := gin.New()
	engine.GET("/me", AuthRequired(staticJWT("secret")), func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": id.UserID(), "tenant": id.TenantID()})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User   uuid.UUID `json:"user"`
		Tenant uuid.UUID `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, userID, body.User)
	assert.Equal(t, tenantID, body.Tenant)
}

func TestAuthRequiredRejectsRefreshTokens(t *testing.T) {
	token := signToken(t, "secret", jwt.MapClaims{"sub": uuid.NewString(), "type": "refresh"})

	engine := gin.New()
	engine.GET("/me", AuthRequired(staticJWT("secret")), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMustGetIdentityRequiresTenant(t *testing.T) {
	token := signToken(t, "secret", jwt.MapClaims{"sub": uuid.NewString(), "type": "access"})

	engine := gin.New()
	engine.GET("/me", AuthRequired(staticJWT("secret")), func(c *gin.Context) {
		if MustGetIdentity(c) == nil {
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body.Code)
	assert.Equal(t, "tenant required", body.Error)
}

func TestMustGetIdentityRejectsAnonymousCallers(t *testing.T) {
	engine := gin.New()
	engine.GET("/me", func(c *gin.Context) {
		if MustGetIdentity(c) == nil {
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestHandleErrorMapsBusyAsRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	handled := HandleError(c, apperr.Busy("stage is locked"))

	require.True(t, handled)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BUSY", body.Code)
	assert.True(t, body.Retryable)
}

func TestHandleErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	HandleError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), "INTERNAL")
}

func TestRequestIDEchoesHeader(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}
