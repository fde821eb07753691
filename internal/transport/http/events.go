package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// EventInitializer is the minimal interface needed to create events.
type EventInitializer interface {
	InitializeEvent(ctx context.Context, in app.InitializeEventInput) (domain.Event, error)
}

// EventReader is the minimal interface needed to read events.
type EventReader interface {
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
}

// ProtectionAttacher is the minimal interface needed to attach refund
// protection.
type ProtectionAttacher interface {
	AttachRefundProtection(ctx context.Context, in app.AttachProtectionInput) (domain.Event, error)
}

// ResolutionRecorder is the minimal interface needed to record market
// outcomes.
type ResolutionRecorder interface {
	RecordMarketResolution(ctx context.Context, in app.RecordResolutionInput) (domain.Event, error)
}

// HandleInitializeEvent creates an event owned by the caller.
func HandleInitializeEvent(svc EventInitializer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req initializeEventRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var startsAt *time.Time
		if req.StartsAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.StartsAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
				return
			}
			startsAt = &parsed
		}

		event, err := svc.InitializeEvent(r.Context(), app.InitializeEventInput{
			Organizer:           caller,
			Name:                req.Name,
			Venue:               req.Venue,
			StartsAt:            startsAt,
			TicketPrice:         req.TicketPrice,
			MaxTickets:          req.MaxTickets,
			MaxResaleMarkupBps:  req.MaxResaleMarkupBps,
			TransferLockStart:   req.TransferLockStart,
			MaxTicketsPerWallet: req.MaxTicketsPerWallet,
			TransfersEnabled:    req.TransfersEnabled,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newEventResponse(event))
	}
}

// HandleGetEvent returns one event.
func HandleGetEvent(svc EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, err := svc.GetEvent(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(event))
	}
}

// HandleAttachProtection attaches refund protection; the caller must be the
// event authority.
func HandleAttachProtection(svc ProtectionAttacher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req attachProtectionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.MarketRef == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "market_ref is required")
			return
		}
		condition, err := domain.ParseRefundCondition(req.Condition)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		event, err := svc.AttachRefundProtection(r.Context(), app.AttachProtectionInput{
			EventID:          r.PathValue("id"),
			Caller:           caller,
			MarketRef:        req.MarketRef,
			Condition:        condition,
			RefundPercentage: req.RefundPercentage,
			Oracle:           domain.Identity(req.Oracle),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(event))
	}
}

// HandleRecordResolution records a market outcome; the caller must be the
// event's oracle.
func HandleRecordResolution(svc ResolutionRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req recordResolutionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		outcome, err := domain.ParseOutcome(req.Outcome)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		event, err := svc.RecordMarketResolution(r.Context(), app.RecordResolutionInput{
			EventID: r.PathValue("id"),
			Oracle:  caller,
			Outcome: outcome,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(event))
	}
}

type initializeEventRequest struct {
	Name                string `json:"name"`
	Venue               string `json:"venue,omitempty"`
	StartsAt            string `json:"starts_at,omitempty"`
	TicketPrice         uint64 `json:"ticket_price"`
	MaxTickets          uint64 `json:"max_tickets"`
	MaxResaleMarkupBps  uint16 `json:"max_resale_markup_bps"`
	TransferLockStart   int64  `json:"transfer_lock_start,omitempty"`
	MaxTicketsPerWallet uint8  `json:"max_tickets_per_wallet"`
	TransfersEnabled    bool   `json:"transfers_enabled"`
}

type attachProtectionRequest struct {
	MarketRef        string `json:"market_ref"`
	Condition        string `json:"condition"`
	RefundPercentage uint8  `json:"refund_percentage"`
	Oracle           string `json:"oracle,omitempty"`
}

type recordResolutionRequest struct {
	Outcome string `json:"outcome"`
}

type protectionResponse struct {
	MarketRef        string     `json:"market_ref"`
	Condition        string     `json:"condition"`
	RefundPercentage uint8      `json:"refund_percentage"`
	Oracle           string     `json:"oracle"`
	MarketResolved   bool       `json:"market_resolved"`
	ResolvedOutcome  string     `json:"resolved_outcome,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	TriggeredRefund  bool       `json:"triggered_refund"`
}

type eventResponse struct {
	ID                  string              `json:"id"`
	Authority           string              `json:"authority"`
	Name                string              `json:"name"`
	Venue               string              `json:"venue,omitempty"`
	StartsAt            *time.Time          `json:"starts_at,omitempty"`
	TicketPrice         uint64              `json:"ticket_price"`
	MaxTickets          uint64              `json:"max_tickets"`
	TicketsSold         uint64              `json:"tickets_sold"`
	MaxResaleMarkupBps  uint16              `json:"max_resale_markup_bps"`
	TransferLockStart   int64               `json:"transfer_lock_start"`
	MaxTicketsPerWallet uint8               `json:"max_tickets_per_wallet"`
	TransfersEnabled    bool                `json:"transfers_enabled"`
	VaultAccount        string              `json:"vault_account"`
	Protection          *protectionResponse `json:"protection,omitempty"`
}

func newEventResponse(e domain.Event) eventResponse {
	resp := eventResponse{
		ID:                  e.ID,
		Authority:           e.Authority.String(),
		Name:                e.Name,
		Venue:               e.Venue,
		TicketPrice:         e.TicketPrice,
		MaxTickets:          e.MaxTickets,
		TicketsSold:         e.TicketsSold,
		MaxResaleMarkupBps:  e.MaxResaleMarkupBps,
		TransferLockStart:   e.TransferLockStart,
		MaxTicketsPerWallet: e.MaxTicketsPerWallet,
		TransfersEnabled:    e.TransfersEnabled,
		VaultAccount:        e.VaultAccount(),
	}
	if !e.StartsAt.IsZero() {
		startsAt := e.StartsAt
		resp.StartsAt = &startsAt
	}
	if e.Protection.Enabled {
		p := e.Protection
		resp.Protection = &protectionResponse{
			MarketRef:        p.MarketRef,
			Condition:        string(p.Condition),
			RefundPercentage: p.RefundPercentage,
			Oracle:           p.OracleIdentity.String(),
			MarketResolved:   p.MarketResolved,
			ResolvedOutcome:  string(p.ResolvedOutcome),
			ResolvedAt:       p.ResolvedAt,
			TriggeredRefund:  p.TriggeredRefund,
		}
	}
	return resp
}
