package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/auth"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

// stubLedger implements every service interface the router needs. It records
// the last input and returns err when set.
type stubLedger struct {
	err error

	initIn     app.InitializeEventInput
	attachIn   app.AttachProtectionInput
	resolveIn  app.RecordResolutionInput
	buyIn      app.BuyTicketInput
	transferIn app.TransferTicketInput
	refundIn   app.ClaimRefundInput
	checkInIn  app.CheckInInput
	depositIn  app.DepositInput
}

func (s *stubLedger) event(id string) domain.Event {
	return domain.Event{ID: id, Authority: "organizer", Name: "Open Air", TicketPrice: 100, MaxTickets: 10}
}

func (s *stubLedger) ticket(id string, owner domain.Identity) domain.Ticket {
	return domain.Ticket{ID: id, EventID: "ev-1", Owner: owner, PurchasePrice: 100, PurchasedAt: testNow}
}

func (s *stubLedger) InitializeEvent(_ context.Context, in app.InitializeEventInput) (domain.Event, error) {
	s.initIn = in
	if s.err != nil {
		return domain.Event{}, s.err
	}
	e := s.event("ev-1")
	e.Authority = in.Organizer
	e.Name = in.Name
	return e, nil
}

func (s *stubLedger) GetEvent(_ context.Context, id string) (domain.Event, error) {
	if s.err != nil {
		return domain.Event{}, s.err
	}
	return s.event(id), nil
}

func (s *stubLedger) AttachRefundProtection(_ context.Context, in app.AttachProtectionInput) (domain.Event, error) {
	s.attachIn = in
	if s.err != nil {
		return domain.Event{}, s.err
	}
	e := s.event(in.EventID)
	e.Protection = domain.Protection{Enabled: true, MarketRef: in.MarketRef, Condition: in.Condition, RefundPercentage: in.RefundPercentage, OracleIdentity: "oracle"}
	return e, nil
}

func (s *stubLedger) RecordMarketResolution(_ context.Context, in app.RecordResolutionInput) (domain.Event, error) {
	s.resolveIn = in
	if s.err != nil {
		return domain.Event{}, s.err
	}
	return s.event(in.EventID), nil
}

func (s *stubLedger) BuyTicket(_ context.Context, in app.BuyTicketInput) (domain.Ticket, error) {
	s.buyIn = in
	if s.err != nil {
		return domain.Ticket{}, s.err
	}
	return s.ticket("t-1", in.Buyer), nil
}

func (s *stubLedger) GetTicket(_ context.Context, id string) (domain.Ticket, error) {
	if s.err != nil {
		return domain.Ticket{}, s.err
	}
	return s.ticket(id, "alice"), nil
}

func (s *stubLedger) TransferTicket(_ context.Context, in app.TransferTicketInput) (domain.Ticket, error) {
	s.transferIn = in
	if s.err != nil {
		return domain.Ticket{}, s.err
	}
	return s.ticket(in.TicketID, in.NewOwner), nil
}

func (s *stubLedger) ClaimRefund(_ context.Context, in app.ClaimRefundInput) (app.ClaimRefundResult, error) {
	s.refundIn = in
	if s.err != nil {
		return app.ClaimRefundResult{}, s.err
	}
	t := s.ticket(in.TicketID, in.Claimer)
	t.RefundClaimed = true
	return app.ClaimRefundResult{Ticket: t, Amount: 50}, nil
}

func (s *stubLedger) CheckInTicket(_ context.Context, in app.CheckInInput) (app.CheckInResult, error) {
	s.checkInIn = in
	if s.err != nil {
		return app.CheckInResult{}, s.err
	}
	t := s.ticket(in.TicketID, in.Authority)
	t.CheckedIn = true
	return app.CheckInResult{
		Ticket: t,
		Badge:  domain.Badge{ID: "b-1", Owner: in.Authority, EventID: "ev-1", EventName: in.EventName, EventType: in.EventType, CheckInTime: testNow},
	}, nil
}

func (s *stubLedger) GetBadge(_ context.Context, eventID string, owner domain.Identity) (domain.Badge, error) {
	if s.err != nil {
		return domain.Badge{}, s.err
	}
	return domain.Badge{ID: "b-1", Owner: owner, EventID: eventID, EventType: domain.EventTypeMusic}, nil
}

func (s *stubLedger) Deposit(_ context.Context, in app.DepositInput) (domain.Account, error) {
	s.depositIn = in
	if s.err != nil {
		return domain.Account{}, s.err
	}
	return domain.Account{ID: in.AccountID, Owner: in.Owner, Balance: in.Amount}, nil
}

func (s *stubLedger) GetAccount(_ context.Context, id string) (domain.Account, error) {
	if s.err != nil {
		return domain.Account{}, s.err
	}
	return domain.Account{ID: id, Owner: domain.Identity(id), Balance: 42}, nil
}

func newTestRouter(t *testing.T, svc *stubLedger) (http.Handler, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier(auth.Config{
		JWTSecret:    "test-secret",
		Issuer:       "ticket-ledger",
		OperatorKeys: []string{"op-key"},
	})
	router := NewRouter(Services{
		Registry: svc,
		Tickets:  svc,
		Resale:   svc,
		Oracle:   svc,
		Refunds:  svc,
		CheckIn:  svc,
		Passport: svc,
		Accounts: svc,
	}, verifier, RouterConfig{})
	return router, verifier
}

func bearer(t *testing.T, v *auth.Verifier, id domain.Identity) string {
	t.Helper()
	token, err := v.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Code
}

func TestRouter_EventRoutes(t *testing.T) {
	svc := &stubLedger{}
	router, verifier := newTestRouter(t, svc)
	organizer := map[string]string{"Authorization": bearer(t, verifier, "organizer")}

	rec := serve(router, http.MethodPost, "/events",
		`{"name":"Open Air","starts_at":"2025-07-01T20:00:00Z","ticket_price":100,"max_tickets":10,"max_resale_markup_bps":1000,"max_tickets_per_wallet":2,"transfers_enabled":true}`,
		organizer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.initIn.Organizer != "organizer" || svc.initIn.MaxResaleMarkupBps != 1000 || svc.initIn.StartsAt == nil {
		t.Fatalf("unexpected input: %+v", svc.initIn)
	}
	if !strings.Contains(rec.Body.String(), `"vault_account":"vault:ev-1"`) {
		t.Fatalf("expected vault account in body, got %s", rec.Body.String())
	}

	rec = serve(router, http.MethodPost, "/events/ev-1/protection",
		`{"market_ref":"rain","condition":"on_yes","refund_percentage":50}`, organizer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.attachIn.EventID != "ev-1" || svc.attachIn.Condition != domain.RefundOnOutcomeA || svc.attachIn.Caller != "organizer" {
		t.Fatalf("unexpected input: %+v", svc.attachIn)
	}
	if !strings.Contains(rec.Body.String(), `"refund_percentage":50`) {
		t.Fatalf("expected protection in body, got %s", rec.Body.String())
	}

	rec = serve(router, http.MethodPost, "/events/ev-1/resolution", `{"outcome":"YES"}`,
		map[string]string{"Authorization": bearer(t, verifier, "oracle")})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.resolveIn.Oracle != "oracle" || svc.resolveIn.Outcome != domain.OutcomeA {
		t.Fatalf("unexpected input: %+v", svc.resolveIn)
	}

	rec = serve(router, http.MethodGet, "/events/ev-9", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"ev-9"`) {
		t.Fatalf("unexpected get event response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_EventValidation(t *testing.T) {
	svc := &stubLedger{}
	router, verifier := newTestRouter(t, svc)
	organizer := map[string]string{"Authorization": bearer(t, verifier, "organizer")}

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		headers        map[string]string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "no identity",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x"}`,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthenticated,
		},
		{
			name:           "bad token",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x"}`,
			headers:        map[string]string{"Authorization": "Bearer nope"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthenticated,
		},
		{
			name:           "operator key is not an identity",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x"}`,
			headers:        map[string]string{"Authorization": "ApiKey op-key"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthenticated,
		},
		{
			name:           "unknown field",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x","zone":"A"}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequestBody,
		},
		{
			name:           "bad starts_at",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x","starts_at":"tomorrow"}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidStartsAt,
		},
		{
			name:           "markup does not fit",
			method:         http.MethodPost,
			path:           "/events",
			body:           `{"name":"x","max_resale_markup_bps":70000}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequestBody,
		},
		{
			name:           "missing market",
			method:         http.MethodPost,
			path:           "/events/ev-1/protection",
			body:           `{"condition":"on_yes","refund_percentage":50}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:           "bad condition",
			method:         http.MethodPost,
			path:           "/events/ev-1/protection",
			body:           `{"market_ref":"rain","condition":"maybe","refund_percentage":50}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_refund_condition",
		},
		{
			name:           "bad outcome",
			method:         http.MethodPost,
			path:           "/events/ev-1/resolution",
			body:           `{"outcome":"INVALID"}`,
			headers:        organizer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_outcome",
		},
		{
			name:           "unknown route",
			method:         http.MethodGet,
			path:           "/zones",
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path, tt.body, tt.headers)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != tt.expectedCode {
				t.Fatalf("expected code %s, got %s", tt.expectedCode, code)
			}
		})
	}
}

func TestRouter_ServiceErrors(t *testing.T) {
	tests := []struct {
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{domain.ErrSoldOut, http.StatusConflict, "sold_out"},
		{domain.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
		{domain.ErrWalletLimitExceeded, http.StatusConflict, "wallet_limit_exceeded"},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
		{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
		{domain.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "arithmetic_overflow"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, codeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.expectedCode, func(t *testing.T) {
			svc := &stubLedger{err: tt.err}
			router, verifier := newTestRouter(t, svc)

			rec := serve(router, http.MethodPost, "/events/ev-1/tickets", "",
				map[string]string{"Authorization": bearer(t, verifier, "alice")})
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != tt.expectedCode {
				t.Fatalf("expected code %s, got %s", tt.expectedCode, code)
			}
		})
	}
}

func TestRouter_TicketRoutes(t *testing.T) {
	svc := &stubLedger{}
	router, verifier := newTestRouter(t, svc)
	alice := map[string]string{"Authorization": bearer(t, verifier, "alice")}

	rec := serve(router, http.MethodPost, "/events/ev-1/tickets", "", alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.buyIn.EventID != "ev-1" || svc.buyIn.Buyer != "alice" {
		t.Fatalf("unexpected input: %+v", svc.buyIn)
	}

	rec = serve(router, http.MethodPost, "/tickets/t-1/transfer", `{"new_owner":"bob","sale_price":110}`, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.transferIn.CurrentOwner != "alice" || svc.transferIn.NewOwner != "bob" ||
		svc.transferIn.SalePrice == nil || *svc.transferIn.SalePrice != 110 {
		t.Fatalf("unexpected input: %+v", svc.transferIn)
	}

	rec = serve(router, http.MethodPost, "/tickets/t-1/transfer", `{"new_owner":"carol"}`, alice)
	if rec.Code != http.StatusOK || svc.transferIn.SalePrice != nil {
		t.Fatalf("expected gift transfer, got %d %+v", rec.Code, svc.transferIn)
	}

	rec = serve(router, http.MethodPost, "/tickets/t-1/transfer", `{}`, alice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without new_owner, got %d", rec.Code)
	}

	rec = serve(router, http.MethodPost, "/tickets/t-1/check-in",
		`{"event_name":"Open Air","event_type":"festival","ticket_tier":"GA"}`, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.checkInIn.EventType != domain.EventTypeFestival || svc.checkInIn.Authority != "alice" {
		t.Fatalf("unexpected input: %+v", svc.checkInIn)
	}
	if !strings.Contains(rec.Body.String(), `"checked_in":true`) || !strings.Contains(rec.Body.String(), `"event_type":"festival"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = serve(router, http.MethodPost, "/tickets/t-1/check-in", `{"event_name":"x","event_type":"opera"}`, alice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event type, got %d", rec.Code)
	}

	rec = serve(router, http.MethodGet, "/tickets/t-1", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"owner":"alice"`) {
		t.Fatalf("unexpected get ticket response %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/badges/ev-1/alice", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"event_id":"ev-1"`) {
		t.Fatalf("unexpected get badge response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_ClaimRefund(t *testing.T) {
	svc := &stubLedger{}
	router, verifier := newTestRouter(t, svc)
	organizerToken := strings.TrimPrefix(bearer(t, verifier, "organizer"), "Bearer ")

	tests := []struct {
		name           string
		headers        map[string]string
		expectedStatus int
	}{
		{
			name: "co-signed",
			headers: map[string]string{
				"Authorization":      bearer(t, verifier, "alice"),
				eventAuthorityHeader: organizerToken,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing authority token",
			headers:        map[string]string{"Authorization": bearer(t, verifier, "alice")},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "forged authority token",
			headers: map[string]string{
				"Authorization":      bearer(t, verifier, "alice"),
				eventAuthorityHeader: "forged",
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/tickets/t-1/refund", "", tt.headers)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}

	if svc.refundIn.Claimer != "alice" || svc.refundIn.AuthorityProof != "organizer" {
		t.Fatalf("unexpected input: %+v", svc.refundIn)
	}
}

func TestRouter_Accounts(t *testing.T) {
	svc := &stubLedger{}
	router, verifier := newTestRouter(t, svc)

	rec := serve(router, http.MethodPost, "/accounts/alice/deposit", `{"amount":500}`,
		map[string]string{"Authorization": "ApiKey op-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.depositIn.AccountID != "alice" || svc.depositIn.Amount != 500 {
		t.Fatalf("unexpected input: %+v", svc.depositIn)
	}

	rec = serve(router, http.MethodPost, "/accounts/alice/deposit", `{"amount":500}`,
		map[string]string{"Authorization": bearer(t, verifier, "alice")})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for identity token, got %d", rec.Code)
	}

	rec = serve(router, http.MethodPost, "/accounts/alice/deposit", `{"amount":500}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	rec = serve(router, http.MethodPost, "/accounts/alice/deposit", `{"amount":500}`,
		map[string]string{"Authorization": "ApiKey wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rec.Code)
	}

	rec = serve(router, http.MethodGet, "/accounts/alice", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"balance":42`) {
		t.Fatalf("unexpected get account response %d: %s", rec.Code, rec.Body.String())
	}
}
