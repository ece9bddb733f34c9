package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupAuthRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AdminToken(token))
	router.POST("/v1/sync/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func TestAdminToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "valid token", token: "s3cret", header: "Bearer s3cret", want: http.StatusOK},
		{name: "missing header", token: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "s3cret", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "bare token", token: "s3cret", header: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", token: "s3cret", header: "Bearer nope", want: http.StatusForbidden},
		{name: "auth disabled", token: "", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupAuthRouter(tt.token)
			req, _ := http.NewRequest(http.MethodPost, "/v1/sync/pending", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}
