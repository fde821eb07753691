package http

import (
	"net/http"

	"go.uber.org/zap"
)

// Services groups the ledger operations exposed over HTTP.
type Services struct {
	Registry interface {
		EventInitializer
		EventReader
		ProtectionAttacher
	}
	Tickets interface {
		TicketBuyer
		TicketReader
	}
	Resale   TicketTransferer
	Oracle   ResolutionRecorder
	Refunds  RefundClaimer
	CheckIn  TicketCheckIn
	Passport BadgeReader
	Accounts AccountService
}

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	// DB is pinged by the health route when set.
	DB Pinger
}

// NewRouter wires every route behind authentication, CORS and request
// logging.
func NewRouter(svc Services, authn Authenticator, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", HandleHealth(cfg.DB))

	mux.Handle("POST /events", HandleInitializeEvent(svc.Registry))
	mux.Handle("GET /events/{id}", HandleGetEvent(svc.Registry))
	mux.Handle("POST /events/{id}/protection", HandleAttachProtection(svc.Registry))
	mux.Handle("POST /events/{id}/resolution", HandleRecordResolution(svc.Oracle))
	mux.Handle("POST /events/{id}/tickets", HandleBuyTicket(svc.Tickets))

	mux.Handle("GET /tickets/{id}", HandleGetTicket(svc.Tickets))
	mux.Handle("POST /tickets/{id}/transfer", HandleTransferTicket(svc.Resale))
	mux.Handle("POST /tickets/{id}/refund", HandleClaimRefund(svc.Refunds, authn))
	mux.Handle("POST /tickets/{id}/check-in", HandleCheckIn(svc.CheckIn))

	mux.Handle("GET /badges/{event_id}/{owner}", HandleGetBadge(svc.Passport))

	mux.Handle("GET /accounts/{id}", HandleGetAccount(svc.Accounts))
	mux.Handle("POST /accounts/{id}/deposit", HandleDeposit(svc.Accounts))

	mux.Handle("/", NotFoundHandler())

	handler := Authenticate(authn, mux)
	handler = CORS(cfg.AllowedOrigins, handler)
	return RequestLogger(handler, cfg.Logger)
}
