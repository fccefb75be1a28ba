// Package server Finch
//
// Finch is a microblogging backend which provides access to community
// entities (accounts, posts, follows, likes) with stat-enriched feeds.
//
//     Schemes: https
//     BasePath: /v1
//     Version: 1.0.0
//
//     Produces:
//     - application/json
//     Consumes:
//     - application/json
//
// swagger:meta
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/finchsocial/finch/internal/feed"
	"github.com/finchsocial/finch/internal/storage"
)

const maxBodySize = 64 * 1024

type server struct {
	s          storage.Storage
	f          *feed.Service
	bcryptCost int
}

// SetupRouter setups handlers to chi router.
func SetupRouter(s storage.Storage, f *feed.Service, r chi.Router, timeout time.Duration, bcryptCost int) {
	r.Use(
		middleware.StripSlashes,
		cors.AllowAll().Handler,
		middleware.RequestID,
		loggerMiddleware,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		bodyLimiterMiddleware(maxBodySize),
	)

	srv := server{
		s:          s,
		f:          f,
		bcryptCost: bcryptCost,
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", srv.register)
		r.Post("/sessions", srv.login)
		r.With(srv.authenticate).Get("/session", srv.session)

		r.With(srv.maybeAuthenticate).Get("/accounts/{id}", srv.getAccount)
		r.With(srv.authenticate).Put("/account", srv.updateAccount)
		r.With(srv.authenticate).Post("/accounts/{id}/follow", srv.follow)
		r.With(srv.authenticate).Post("/accounts/{id}/unfollow", srv.unfollow)
		r.With(srv.maybeAuthenticate).Get("/accounts/{id}/posts", srv.accountPosts)

		r.With(srv.authenticate).Get("/timeline", srv.homeTimeline)
		r.With(srv.authenticate).Get("/suggestions", srv.suggestions)

		r.With(srv.authenticate).Post("/posts", srv.createPost)
		r.With(srv.maybeAuthenticate).Get("/posts/{id}", srv.getPost)
		r.With(srv.authenticate).Delete("/posts/{id}", srv.deletePost)
		r.With(srv.authenticate).Post("/posts/{id}/like", srv.likePost)
		r.With(srv.authenticate).Post("/posts/{id}/unlike", srv.unlikePost)
		r.With(srv.maybeAuthenticate).Get("/posts/{id}/replies", srv.replies)

		r.With(srv.maybeAuthenticate).Get("/search/posts", srv.searchPosts)
		r.With(srv.maybeAuthenticate).Get("/search/accounts", srv.searchAccounts)
		r.With(srv.maybeAuthenticate).Get("/search", srv.combinedSearch)
	})
}

func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request handled")
	})
}

func bodyLimiterMiddleware(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
