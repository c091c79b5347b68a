// Package auth resolves the caller identity for vault operations.
//
// Authorization itself (owner vs agent) is enforced by the vault service
// against vault state; this middleware only establishes WHO is calling. In
// the original deployment the ledger derived the sender from the transaction
// signature — here a signed bearer token whose subject is the caller address
// plays that role.
package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "agentvault/pkg/domain-errors"
	"agentvault/pkg/platform/httputil"
	"agentvault/pkg/requestcontext"
)

// DevCallerHeader carries the caller address when no signing key is
// configured. Only honored in dev mode.
const DevCallerHeader = "X-Caller-Address"

// CallerIdentity returns middleware that extracts the caller address from a
// Bearer token signed with signingKey (HS256, address in the "sub" claim).
// With an empty signingKey the middleware runs in dev mode and trusts the
// X-Caller-Address header instead.
func CallerIdentity(signingKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := resolveCaller(r, signingKey)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			ctx := requestcontext.WithCallerAddress(r.Context(), addr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveCaller(r *http.Request, signingKey string) (string, error) {
	if signingKey == "" {
		if addr := strings.TrimSpace(r.Header.Get(DevCallerHeader)); addr != "" {
			return addr, nil
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	const bearerPrefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "bearer token required")
	}

	token, err := jwt.Parse(strings.TrimPrefix(header, bearerPrefix), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(signingKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return sub, nil
}
