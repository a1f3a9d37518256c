package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicebook/booking-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(err error) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondWithError(c, err)

	var body Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondWithErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errors.NotFound("booking", nil), http.StatusNotFound, "not_found"},
		{errors.SlotUnavailable("taken"), http.StatusConflict, "slot_unavailable"},
		{errors.ServiceVendorMismatch("x"), http.StatusConflict, "service_vendor_mismatch"},
		{errors.VendorMismatch("x"), http.StatusConflict, "vendor_mismatch"},
		{errors.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{errors.InvalidTransition("no"), http.StatusConflict, "invalid_transition"},
		{errors.HasActiveBookings("busy"), http.StatusConflict, "has_active_bookings"},
		{errors.TransactionAborted(stderrors.New("boom")), http.StatusInternalServerError, "transaction_aborted"},
		{errors.BadRequest("bad", nil), http.StatusBadRequest, "bad_request"},
		{errors.Unauthorized(nil), http.StatusUnauthorized, "unauthorized"},
		{errors.Conflict("dup"), http.StatusConflict, "conflict"},
		{stderrors.New("raw"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w, body := respond(tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestRespondWithErrorHidesInternalDetail(t *testing.T) {
	_, body := respond(errors.Internal(stderrors.New("pq: password authentication failed")))
	assert.Equal(t, "internal server error", body.Message)

	_, body = respond(stderrors.New("dial tcp 10.0.0.1:5432"))
	assert.Equal(t, "internal server error", body.Message)
}

func TestRespondWithSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondWithSuccess(c, http.StatusCreated, gin.H{"id": 7})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"id":7}}`, w.Body.String())
}
