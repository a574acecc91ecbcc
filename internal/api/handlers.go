/**
 * @description
 * This file contains the HTTP handler functions for the controller service.
 * Handlers parse incoming requests, call the authorization engine, and map
 * every typed failure to a distinct HTTP status and error code so callers can
 * tell a gating failure from a misconfiguration.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/BlockApex/bundl-controller-service/internal/app"
	"github.com/BlockApex/bundl-controller-service/internal/store"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
	jobs    *app.Jobs
}

// NewHandler creates a new Handler with the given service and jobs runner.
func NewHandler(service *app.Service, jobs *app.Jobs) *Handler {
	return &Handler{service: service, jobs: jobs}
}

// handleInitializeController handles the request to set up a caller's controller.
func (h *Handler) handleInitializeController(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		FundingAccount string `json:"funding_account"`
		Mint           string `json:"mint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	controller, err := h.service.InitializeController(r.Context(), caller, req.FundingAccount, req.Mint)
	if err != nil {
		status, code := mapServiceError(err)
		respondWithError(w, status, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, controller)
}

// handleGetController handles the request for the caller's controller status.
func (h *Handler) handleGetController(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.service.GetControllerStatus(r.Context(), caller)
	if err != nil {
		httpStatus, code := mapServiceError(err)
		respondWithError(w, httpStatus, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// handleAddBundle handles the request to register a new bundle.
func (h *Handler) handleAddBundle(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		AmountPerInterval int64  `json:"amount_per_interval"`
		IntervalSeconds   int64  `json:"interval_seconds"`
		RecipientAccount  string `json:"recipient_account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	bundle, err := h.service.AddBundle(r.Context(), caller, req.AmountPerInterval, req.IntervalSeconds, req.RecipientAccount)
	if err != nil {
		status, code := mapServiceError(err)
		respondWithError(w, status, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, bundle)
}

// handleListBundles handles the request to list the caller's bundles.
func (h *Handler) handleListBundles(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bundles, err := h.service.ListBundles(r.Context(), caller)
	if err != nil {
		status, code := mapServiceError(err)
		respondWithError(w, status, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, bundles)
}

// handleListPayments handles the request for the caller's payment history.
func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	payments, err := h.service.ListPayments(r.Context(), caller, limit)
	if err != nil {
		status, code := mapServiceError(err)
		respondWithError(w, status, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, payments)
}

// handleTrigger handles a trigger authority's request to execute one payment.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Owner            string `json:"owner"`
		BundleID         uint64 `json:"bundle_id"`
		RecipientAccount string `json:"recipient_account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Owner == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "owner is required")
		return
	}

	payment, err := h.service.Trigger(r.Context(), caller, req.Owner, req.BundleID, req.RecipientAccount)
	if err != nil {
		status, code := mapServiceError(err)
		respondWithError(w, status, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, payment)
}

// handleTriggerScan forces an immediate due-bundle scan, for operators and
// external schedulers that want a tick outside the cron cadence.
func (h *Handler) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	go h.jobs.ProcessDueBundles()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "scan started"})
}

// mapServiceError translates engine and store failures into HTTP status codes
// and stable error codes.
func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized_trigger"
	case errors.Is(err, app.ErrIntervalNotPassed):
		return http.StatusConflict, "interval_not_passed"
	case errors.Is(err, app.ErrTriggerInFlight):
		return http.StatusConflict, "trigger_in_flight"
	case errors.Is(err, app.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, app.ErrInvalidDelegate):
		return http.StatusUnprocessableEntity, "invalid_delegate"
	case errors.Is(err, app.ErrLowAllowance):
		return http.StatusUnprocessableEntity, "low_allowance"
	case errors.Is(err, store.ErrControllerNotFound):
		return http.StatusNotFound, "controller_not_found"
	case errors.Is(err, store.ErrBundleNotFound):
		return http.StatusNotFound, "bundle_not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondWithError writes a JSON error body with a stable machine-readable code.
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, map[string]string{"code": code, "error": message})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
