package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// TicketBuyer is the minimal interface needed to sell tickets.
type TicketBuyer interface {
	BuyTicket(ctx context.Context, in app.BuyTicketInput) (domain.Ticket, error)
}

// TicketReader is the minimal interface needed to read tickets.
type TicketReader interface {
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
}

// TicketTransferer is the minimal interface needed for resale and gifts.
type TicketTransferer interface {
	TransferTicket(ctx context.Context, in app.TransferTicketInput) (domain.Ticket, error)
}

// RefundClaimer is the minimal interface needed to claim refunds.
type RefundClaimer interface {
	ClaimRefund(ctx context.Context, in app.ClaimRefundInput) (app.ClaimRefundResult, error)
}

// TicketCheckIn is the minimal interface needed to check tickets in.
type TicketCheckIn interface {
	CheckInTicket(ctx context.Context, in app.CheckInInput) (app.CheckInResult, error)
}

// TokenVerifier proves an identity from a bare token.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// eventAuthorityHeader carries the event authority's token on refund claims.
const eventAuthorityHeader = "X-Event-Authority"

// HandleBuyTicket sells the next ticket of an event to the caller.
func HandleBuyTicket(svc TicketBuyer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		ticket, err := svc.BuyTicket(r.Context(), app.BuyTicketInput{
			EventID: r.PathValue("id"),
			Buyer:   caller,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newTicketResponse(ticket))
	}
}

// HandleGetTicket returns one ticket.
func HandleGetTicket(svc TicketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := svc.GetTicket(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTicketResponse(ticket))
	}
}

// HandleTransferTicket moves a ticket from the caller to a new owner. A
// missing sale_price is a gift.
func HandleTransferTicket(svc TicketTransferer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req transferTicketRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.NewOwner == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "new_owner is required")
			return
		}

		ticket, err := svc.TransferTicket(r.Context(), app.TransferTicketInput{
			TicketID:     r.PathValue("id"),
			CurrentOwner: caller,
			NewOwner:     domain.Identity(req.NewOwner),
			SalePrice:    req.SalePrice,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTicketResponse(ticket))
	}
}

// HandleClaimRefund pays the caller's refund out of the event vault. The
// event authority co-signs with a token in X-Event-Authority.
func HandleClaimRefund(svc RefundClaimer, verifier TokenVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get(eventAuthorityHeader), "Bearer "))
		if token == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "event authority token required")
			return
		}
		authority, err := verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
			return
		}

		res, err := svc.ClaimRefund(r.Context(), app.ClaimRefundInput{
			TicketID:       r.PathValue("id"),
			Claimer:        caller,
			AuthorityProof: authority,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, refundResponse{
			Ticket: newTicketResponse(res.Ticket),
			Amount: res.Amount,
		})
	}
}

// HandleCheckIn checks the caller's ticket in and mints the attendance badge.
func HandleCheckIn(svc TicketCheckIn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req checkInRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		eventType, err := domain.ParseEventType(req.EventType)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		res, err := svc.CheckInTicket(r.Context(), app.CheckInInput{
			TicketID:   r.PathValue("id"),
			Authority:  caller,
			EventName:  req.EventName,
			EventType:  eventType,
			TicketTier: req.TicketTier,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, checkInResponse{
			Ticket: newTicketResponse(res.Ticket),
			Badge:  newBadgeResponse(res.Badge),
		})
	}
}

type transferTicketRequest struct {
	NewOwner  string  `json:"new_owner"`
	SalePrice *uint64 `json:"sale_price,omitempty"`
}

type checkInRequest struct {
	EventName  string `json:"event_name"`
	EventType  string `json:"event_type"`
	TicketTier string `json:"ticket_tier"`
}

type ticketResponse struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	TicketIndex   uint64    `json:"ticket_index"`
	Owner         string    `json:"owner"`
	PurchasePrice uint64    `json:"purchase_price"`
	PurchasedAt   time.Time `json:"purchased_at"`
	CheckedIn     bool      `json:"checked_in"`
	RefundClaimed bool      `json:"refund_claimed"`
}

func newTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		EventID:       t.EventID,
		TicketIndex:   t.TicketIndex,
		Owner:         t.Owner.String(),
		PurchasePrice: t.PurchasePrice,
		PurchasedAt:   t.PurchasedAt,
		CheckedIn:     t.CheckedIn,
		RefundClaimed: t.RefundClaimed,
	}
}

type refundResponse struct {
	Ticket ticketResponse `json:"ticket"`
	Amount uint64         `json:"amount"`
}

type checkInResponse struct {
	Ticket ticketResponse `json:"ticket"`
	Badge  badgeResponse  `json:"badge"`
}
