package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// IdentityVerifier resolves a bearer credential into a verified identity.
type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

// identify attaches the caller identity when a bearer token is present. Requests
// without a token pass through anonymously; the use cases decide whether that is allowed.
// A malformed or invalid token is rejected here.
func identify(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, r, domain.ErrUnauthorized)
				return
			}
			identity, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, domain.ErrUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// identityFrom returns the caller identity, or the zero identity for anonymous requests.
func identityFrom(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(identityKey).(domain.Identity)
	return identity
}
