// Package identity abstracts the external identity provider. The core
// only needs the current user to stamp ownership on jobs, exams, and
// attempts.
package identity

import (
	"context"
	"net/http"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

// Provider resolves the authenticated user for a request context.
type Provider interface {
	CurrentUser(ctx context.Context) (model.User, error)
}

// Static is a provider that always returns one fixed user. Useful for
// single-tenant deployments and tests; production wires a real provider.
type Static struct {
	User model.User
}

func (s Static) CurrentUser(_ context.Context) (model.User, error) {
	return s.User, nil
}

// HeaderProvider trusts user identity asserted by an upstream auth proxy
// in request headers, the usual shape when auth is terminated outside the
// service.
type HeaderProvider struct{}

func (HeaderProvider) CurrentUser(ctx context.Context) (model.User, error) {
	if u := model.UserFromContext(ctx); u != nil {
		return *u, nil
	}
	return model.User{}, apperr.New(apperr.KindNotFound, "no authenticated user in context")
}

// Middleware copies proxy-asserted identity headers into the request
// context for HeaderProvider to pick up.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-Id")
		if id != "" {
			u := &model.User{ID: id, Email: r.Header.Get("X-User-Email")}
			r = r.WithContext(model.ContextWithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}
