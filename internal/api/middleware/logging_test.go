package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/logging"
)

func TestLogging_CallsNextAndRecordsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/status?x=1", nil)

	called := false
	mw := Logging(logging.NewNop())
	c.Handlers = gin.HandlersChain{mw, func(c *gin.Context) {
		called = true
		c.Status(http.StatusTeapot)
	}}
	c.Next()

	if !called {
		t.Fatal("expected the downstream handler to run")
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected status written through, got %d", w.Code)
	}
}
