package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	portal_errors "careportal/pkg/errors"
)

func TestConnectErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondConnectError(c, portal_errors.ErrNotAssigned)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_ASSIGNED")

	// Wrapped sentinels map the same way.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondConnectError(c, fmt.Errorf("resolve channels: %w", portal_errors.ErrNotAssigned))
	assert.Equal(t, http.StatusConflict, w.Code)

	// A transient lookup failure is not the caller's fault and must not
	// masquerade as a missing assignment.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondConnectError(c, errors.New("db connection refused"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UNAVAILABLE")
}
