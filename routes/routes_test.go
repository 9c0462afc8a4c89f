package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tutorhive/config"
	"tutorhive/handlers"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "student-1",
		"role": role,
	})
	signed, err := token.SignedString([]byte(config.AppConfig.JWTSecret))
	require.NoError(t, err)
	return signed
}

func availabilityBundle(booked *int) *handlers.HandlerBundle {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	return &handlers.HandlerBundle{
		ListAvailabilityHandler: ok,
		PublishSlotsHandler:     ok,
		RemoveSlotHandler:       ok,
		BookSlotHandler: func(c *gin.Context) {
			*booked++
			c.Status(http.StatusCreated)
		},
	}
}

func TestAvailabilityBookAliasDispatchesToBooking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "test-secret"

	booked := 0
	r := gin.New()
	RegisterAvailabilityRoutes(r, availabilityBundle(&booked))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/availabilities/book", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "student"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, booked)
}

func TestAvailabilityBookAliasRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "test-secret"

	booked := 0
	r := gin.New()
	RegisterAvailabilityRoutes(r, availabilityBundle(&booked))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/availabilities/book", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, booked)
}
