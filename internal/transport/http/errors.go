package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidStartsAt      = "invalid_starts_at"
	codeUnauthenticated      = "unauthenticated"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	// 400
	{domain.ErrInvalidID, http.StatusBadRequest, "invalid_id"},
	{domain.ErrEventNameRequired, http.StatusBadRequest, "event_name_required"},
	{domain.ErrAmountOutOfRange, http.StatusBadRequest, "amount_out_of_range"},
	{domain.ErrInvalidOutcome, http.StatusBadRequest, "invalid_outcome"},
	{domain.ErrInvalidRefundCondition, http.StatusBadRequest, "invalid_refund_condition"},
	{domain.ErrInvalidRefundPercentage, http.StatusBadRequest, "invalid_refund_percentage"},
	{domain.ErrInvalidEventType, http.StatusBadRequest, "invalid_event_type"},
	{domain.ErrInvalidBadgeMetadata, http.StatusBadRequest, "invalid_badge_metadata"},
	// 403
	{domain.ErrOwnershipMismatch, http.StatusForbidden, "ownership_mismatch"},
	{domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{domain.ErrInvalidOracle, http.StatusForbidden, "invalid_oracle"},
	// 404
	{domain.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{domain.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
	{domain.ErrBadgeNotFound, http.StatusNotFound, "badge_not_found"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	// 409
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{domain.ErrSoldOut, http.StatusConflict, "sold_out"},
	{domain.ErrTransfersDisabled, http.StatusConflict, "transfers_disabled"},
	{domain.ErrTransferLocked, http.StatusConflict, "transfer_locked"},
	{domain.ErrWalletLimitExceeded, http.StatusConflict, "wallet_limit_exceeded"},
	{domain.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in"},
	{domain.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{domain.ErrRefundAlreadyClaimed, http.StatusConflict, "refund_already_claimed"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
	// 422
	{domain.ErrPriceCapExceeded, http.StatusUnprocessableEntity, "price_cap_exceeded"},
	{domain.ErrRefundNotAvailable, http.StatusUnprocessableEntity, "refund_not_available"},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{domain.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "arithmetic_overflow"},
}

// writeServiceError maps a domain error to its status and code. Anything
// unmapped is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}
	logger.ErrorCtx(r.Context(), err, zap.String("method", r.Method), zap.String("path", r.URL.Path))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
