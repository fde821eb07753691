package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// BadgeReader is the minimal interface needed to read badges.
type BadgeReader interface {
	GetBadge(ctx context.Context, eventID string, owner domain.Identity) (domain.Badge, error)
}

// AccountService is the minimal interface needed for vault accounts.
type AccountService interface {
	Deposit(ctx context.Context, in app.DepositInput) (domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
}

// HandleGetBadge returns the attendance badge of an owner for an event.
func HandleGetBadge(svc BadgeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		badge, err := svc.GetBadge(r.Context(), r.PathValue("event_id"), domain.Identity(r.PathValue("owner")))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBadgeResponse(badge))
	}
}

// HandleGetAccount returns a vault account balance.
func HandleGetAccount(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := svc.GetAccount(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccountResponse(acct))
	}
}

// HandleDeposit credits an account. Operator only.
func HandleDeposit(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req depositRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		acct, err := svc.Deposit(r.Context(), app.DepositInput{
			AccountID: r.PathValue("id"),
			Owner:     domain.Identity(req.Owner),
			Amount:    req.Amount,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccountResponse(acct))
	}
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
	Owner  string `json:"owner,omitempty"`
}

type badgeResponse struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	EventID     string    `json:"event_id"`
	EventName   string    `json:"event_name"`
	EventType   string    `json:"event_type"`
	TicketTier  string    `json:"ticket_tier"`
	CheckInTime time.Time `json:"check_in_time"`
}

func newBadgeResponse(b domain.Badge) badgeResponse {
	return badgeResponse{
		ID:          b.ID,
		Owner:       b.Owner.String(),
		EventID:     b.EventID,
		EventName:   b.EventName,
		EventType:   string(b.EventType),
		TicketTier:  b.TicketTier,
		CheckInTime: b.CheckInTime,
	}
}

type accountResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Balance   uint64    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Owner:     a.Owner.String(),
		Balance:   a.Balance,
		UpdatedAt: a.UpdatedAt,
	}
}
