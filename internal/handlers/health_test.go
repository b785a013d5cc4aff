package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qlozet/stylefeed/internal/services"
)

type staticHealth string

func (s staticHealth) CheckHealth(context.Context) *services.HealthStatus {
	return &services.HealthStatus{Status: string(s), Services: map[string]string{}}
}

func TestHealthHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for status, want := range map[string]int{
		services.StatusHealthy:   http.StatusOK,
		services.StatusDegraded:  http.StatusOK,
		services.StatusUnhealthy: http.StatusServiceUnavailable,
	} {
		t.Run(status, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(testLogger(), staticHealth(status)).Check)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, want, w.Code)
			assert.Contains(t, w.Body.String(), `"status":"`+status+`"`)
		})
	}
}
