package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/finchsocial/finch/internal/entities"
	"github.com/finchsocial/finch/internal/storage"
)

type contextKey int

const requesterContextKey contextKey = iota

// authenticate requires a valid bearer api token and puts the resolved
// account into the request context.
func (s server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := s.resolveRequester(w, r, true)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(withRequester(r.Context(), account)))
	})
}

// maybeAuthenticate resolves a bearer token when one is supplied; a
// missing header means an anonymous requester. A supplied but invalid
// token is still rejected.
func (s server) maybeAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := s.resolveRequester(w, r, false)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(withRequester(r.Context(), account)))
	})
}

func (s server) resolveRequester(w http.ResponseWriter, r *http.Request, required bool) (*entities.Account, bool) {
	h := r.Header.Get("Authorization")

	if h == "" {
		if required {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return nil, false
		}

		return nil, true
	}

	if !strings.HasPrefix(h, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return nil, false
	}

	account, err := s.s.GetAccountByAPIToken(r.Context(), strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return nil, false
		}

		writeInternalError(w, err, "failed to resolve api token")
		return nil, false
	}

	return account, true
}

func withRequester(ctx context.Context, a *entities.Account) context.Context {
	if a == nil {
		return ctx
	}

	return context.WithValue(ctx, requesterContextKey, a)
}

// requesterFromContext returns the authenticated account or nil for
// anonymous requests.
func requesterFromContext(ctx context.Context) *entities.Account {
	a, _ := ctx.Value(requesterContextKey).(*entities.Account)
	return a
}
