package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: unknown sort", ErrInvalidFilterSpec), http.StatusBadRequest},
		{fmt.Errorf("%w: draft -> draft", ErrInvalidStatusTransition), http.StatusBadRequest},
		{fmt.Errorf("%w: file exceeds 500 MB", ErrValidationRejected), http.StatusUnprocessableEntity},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrNotPurchased, http.StatusForbidden},
		{fmt.Errorf("attach builds: %w", ErrGameNotFound), http.StatusNotFound},
		{ErrUploadNotFound, http.StatusNotFound},
		{ErrEmailRegistered, http.StatusConflict},
		{fmt.Errorf("%w: connection refused", ErrCatalogUnavailable), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.status, resp.Code)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, resp.Message, "disk on fire")
			} else {
				assert.Equal(t, tc.err.Error(), resp.Message)
			}
		})
	}
}
