package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/http/middleware"
)

func pingModule() Module {
	return ModuleFunc(func(c *Controller) {
		c.GET("/ping", func(*gin.Context) (any, *APIError) {
			return gin.H{"pong": true}, nil
		})
		c.POST("/fail", func(*gin.Context) (any, *APIError) {
			return nil, &APIError{Code: http.StatusConflict, Message: "busy"}
		})
	})
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOperatorGroup_RequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp, err := OperatorGroup("/api", "secret", pingModule()).Mount(r)
	require.NoError(t, err)
	assert.Equal(t, "/api", grp.BasePath())

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/ping", "").Code)

	token, err := middleware.GenerateJWT("ops", "secret", time.Minute)
	require.NoError(t, err)
	w := serve(r, http.MethodGet, "/api/ping", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pong":true}`, w.Body.String())

	w = serve(r, http.MethodPost, "/api/fail", token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"busy"}`, w.Body.String())
}

func TestOperatorGroup_WithoutSecretIsRefused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	_, err := OperatorGroup("/api", "", pingModule()).Mount(r)
	assert.ErrorIs(t, err, ErrNoOperatorSecret)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/ping", "").Code)
}

func TestPublicGroup_NestsAndRunsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/v1")

	tagged := false
	_, err := Group{
		Prefix:     "/status",
		Public:     true,
		Middleware: []gin.HandlerFunc{func(c *gin.Context) { tagged = true; c.Next() }},
		Modules:    []Module{pingModule()},
	}.Mount(v1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/status/ping", "").Code)
	assert.True(t, tagged)
}
