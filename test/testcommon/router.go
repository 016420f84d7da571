// Package testcommon provides in-process fakes of the organization backend
// and the CSP, for testing the voter flow end to end.
package testcommon

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"go.vocdoni.io/vaas/api"
)

const bearerPrefix = "Bearer "

// newRouter returns a chi router with the middleware stack of the real services.
func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return true
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	return r
}

// bearerAuth rejects requests without the given bearer token. A nil token
// accepts every request.
func bearerAuth(token *uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != nil && strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix) != token.String() {
				api.ErrUnauthorized.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serve starts an httptest server for h, closed on test cleanup, and
// returns its URL with prefix as path.
func serve(t testing.TB, h http.Handler, prefix string) *url.URL {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + prefix)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
