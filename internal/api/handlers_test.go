package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/BlockApex/bundl-controller-service/internal/app"
	"github.com/BlockApex/bundl-controller-service/internal/store"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: app.ErrUnauthorized, wantStatus: http.StatusForbidden, wantCode: "unauthorized_trigger"},
		{err: app.ErrIntervalNotPassed, wantStatus: http.StatusConflict, wantCode: "interval_not_passed"},
		{err: app.ErrTriggerInFlight, wantStatus: http.StatusConflict, wantCode: "trigger_in_flight"},
		{err: app.ErrInsufficientFunds, wantStatus: http.StatusPaymentRequired, wantCode: "insufficient_funds"},
		{err: app.ErrInvalidDelegate, wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid_delegate"},
		{err: app.ErrLowAllowance, wantStatus: http.StatusUnprocessableEntity, wantCode: "low_allowance"},
		{err: store.ErrControllerNotFound, wantStatus: http.StatusNotFound, wantCode: "controller_not_found"},
		{err: store.ErrBundleNotFound, wantStatus: http.StatusNotFound, wantCode: "bundle_not_found"},
		{err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
		{err: fmt.Errorf("wrapped: %w", app.ErrInsufficientFunds), wantStatus: http.StatusPaymentRequired, wantCode: "insufficient_funds"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := mapServiceError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("mapServiceError(%v) = (%d, %q), want (%d, %q)", tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}
