package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/auth"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// Authenticator turns request credentials into a caller.
type Authenticator interface {
	Authenticate(header string) (auth.Result, error)
	Verify(token string) (domain.Identity, error)
}

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type authContextKey struct{}

// Authenticate resolves the Authorization header, when present, and stores
// the result on the request context. Requests without credentials pass
// through; handlers decide whether they need a caller.
func Authenticate(authn Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		res, err := authn.Authenticate(header)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, res)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (auth.Result, bool) {
	res, ok := ctx.Value(authContextKey{}).(auth.Result)
	return res, ok
}

// requireIdentity writes a 401 and reports false unless the request carries
// an identity token.
func requireIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	res, ok := authFromContext(r.Context())
	if !ok || res.Type != auth.TypeJWT || !res.Identity.Valid() {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "identity token required")
		return "", false
	}
	return res.Identity, true
}

func requireOperator(w http.ResponseWriter, r *http.Request) bool {
	res, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "operator key required")
		return false
	}
	if res.Type != auth.TypeAPIKey {
		writeError(w, http.StatusForbidden, codeForbidden, "operator key required")
		return false
	}
	return true
}
