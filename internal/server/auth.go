package server

import (
	"SynthLedger/internal/ledger"
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const callerKey contextKey = "caller"

// CallerClaims binds a bearer token to the on-ledger address it speaks
// for. The gateway issuing tokens is responsible for proving address
// ownership; this service only verifies the signature.
type CallerClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens and injects the caller
// address into the request context.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Middleware rejects requests without a valid bearer token carrying a
// parseable address claim.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := &CallerClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		caller, err := ledger.ParseAddress(claims.Address)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid address claim")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the authenticated caller address.
func CallerFromContext(ctx context.Context) (ledger.Address, bool) {
	caller, ok := ctx.Value(callerKey).(ledger.Address)
	return caller, ok
}

// SignCallerToken issues a token for the given address. Used by tests
// and local tooling.
func SignCallerToken(secret []byte, address ledger.Address) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CallerClaims{Address: address.Hex()})
	return token.SignedString(secret)
}
