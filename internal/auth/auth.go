package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

const (
	TypeJWT    = "jwt"
	TypeAPIKey = "apikey"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMalformedHeader    = errors.New("invalid Authorization header format")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrNotConfigured      = errors.New("authentication not configured")
)

// Config holds the identity verification settings.
type Config struct {
	JWTSecret    string
	Issuer       string
	OperatorKeys []string
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// Result is the outcome of authenticating one credential.
type Result struct {
	Type     string
	Identity domain.Identity
	Claims   *jwt.RegisteredClaims
}

// Verifier checks identity capabilities (HMAC-signed JWTs whose subject is
// the identity) and operator API keys.
type Verifier struct {
	secret  []byte
	issuer  string
	apiKeys [][]byte
	parser  *jwt.Parser
	now     func() time.Time
}

func NewVerifier(cfg Config) *Verifier {
	keys := make([][]byte, 0, len(cfg.OperatorKeys))
	for _, k := range cfg.OperatorKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.Issuer,
		apiKeys: keys,
		parser:  jwt.NewParser(opts...),
		now:     time.Now,
	}
}

// Authenticate parses an Authorization header value ("Bearer <jwt>" or
// "ApiKey <key>").
func (v *Verifier) Authenticate(header string) (Result, error) {
	if header == "" {
		return Result{}, ErrMissingCredentials
	}
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok || cred == "" {
		return Result{}, ErrMalformedHeader
	}

	switch strings.ToLower(scheme) {
	case "bearer":
		claims, err := v.parse(cred)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: TypeJWT, Identity: domain.Identity(claims.Subject), Claims: claims}, nil
	case "apikey":
		if err := v.checkAPIKey(cred); err != nil {
			return Result{}, err
		}
		return Result{Type: TypeAPIKey}, nil
	default:
		return Result{}, fmt.Errorf("unsupported authorization type: %s", scheme)
	}
}

// Verify validates a bare JWT and returns the identity it proves.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	claims, err := v.parse(token)
	if err != nil {
		return "", err
	}
	return domain.Identity(claims.Subject), nil
}

// Issue signs a capability for id valid for ttl.
func (v *Verifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   string(id),
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) parse(token string) (*jwt.RegisteredClaims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !domain.Identity(claims.Subject).Valid() {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) checkAPIKey(key string) error {
	if len(v.apiKeys) == 0 {
		return ErrNotConfigured
	}
	// No early exit: every configured key is compared.
	given := []byte(key)
	matched := 0
	for _, k := range v.apiKeys {
		matched |= subtle.ConstantTimeCompare(given, k)
	}
	if matched != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}
