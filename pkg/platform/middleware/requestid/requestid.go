// Package requestid tags every request with a correlation id and pins the
// request time.
package requestid

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentvault/pkg/requestcontext"
)

// Header carries the caller-supplied request id. A missing or blank header
// gets a generated uuid. The resolved id is echoed back on the response.
const Header = "X-Request-ID"

// Middleware resolves the request id and stores it in the context, along
// with the arrival time so every read within the request observes the same
// instant. This middleware should be applied early in the chain.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
