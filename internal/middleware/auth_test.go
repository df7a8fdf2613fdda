package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/utils"
)

func newRouter(tm *utils.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", AuthMiddleware(tm))
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUserID(c), "role": CurrentRole(c)})
	})
	api.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tm := utils.NewTokenManager("secret", time.Hour)
	r := newRouter(tm)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", "bogus").Code)

	token, err := tm.GenerateJWT("u1", string(models.RoleDoctor))
	require.NoError(t, err)
	w := do(r, "/api/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u1","role":"DOCTOR"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	tm := utils.NewTokenManager("secret", time.Hour)
	r := newRouter(tm)

	doctor, err := tm.GenerateJWT("u1", string(models.RoleDoctor))
	require.NoError(t, err)
	admin, err := tm.GenerateJWT("u2", string(models.RoleAdmin))
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, "/api/admin", doctor).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/api/admin", admin).Code)
}
