package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type stubVerifier struct {
	claims map[string]*models.JWTClaims
}

func (s stubVerifier) Verify(token string) (*models.JWTClaims, error) {
	if c, ok := s.claims[token]; ok {
		return c, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.paths = append(r.paths, path)
	r.statuses = append(r.statuses, status)
}

func newProtectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := stubVerifier{claims: map[string]*models.JWTClaims{
		"admin":   {UserID: "u1", Role: models.RoleAdmin},
		"teacher": {UserID: "u2", Role: models.RoleTeacher},
	}}
	router := gin.New()
	group := router.Group("/", JWT(verifier))
	group.GET("/read", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.POST("/write", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestJWTAndRBAC(t *testing.T) {
	router := newProtectedRouter()
	cases := []struct {
		name   string
		method string
		path   string
		header string
		status int
	}{
		{"missing header", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"malformed header", http.MethodGet, "/read", "Token admin", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/read", "Bearer nope", http.StatusUnauthorized},
		{"teacher reads", http.MethodGet, "/read", "Bearer teacher", http.StatusOK},
		{"teacher writes", http.MethodPost, "/write", "Bearer teacher", http.StatusForbidden},
		{"admin writes", http.MethodPost, "/write", "Bearer admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/progress/jobs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/progress/jobs/42", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, []string{"/progress/jobs/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}
