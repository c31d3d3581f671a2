package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wellywell/skborders/internal/auth"
	"github.com/wellywell/skborders/internal/config"
	"github.com/wellywell/skborders/internal/handlers"
)

const (
	compressLevel = 5
)

type Middleware interface {
	Handle(h http.Handler) http.Handler
}

type Router struct {
	server *http.Server
	router *chi.Mux
}

// NewRouter builds the API. ws may be nil when the realtime feed is disabled.
func NewRouter(conf *config.ServerConfig, h *handlers.HandlerSet, ws http.Handler, middlewares ...Middleware) *Router {

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, m := range middlewares {
		r.Use(m.Handle)
	}
	r.Use(middleware.Compress(compressLevel))

	r.Get("/health", h.HandleHealth)

	apiKey := &auth.APIKeyMiddleware{Key: conf.APIKey}

	r.Group(func(r chi.Router) {

		r.Use(apiKey.Handle)

		r.Post("/order/create", h.HandleCreateOrder)
		r.Get("/order", h.HandleListOrders)
		r.Get("/order/{id}", h.HandleGetOrder)
		r.Get("/order/{id}/get-result", h.HandleGetResult)
		r.Get("/order/{id}/result", h.HandleGetOrderResult)
		r.Get("/order/{id}/file", h.HandleGetFile)
		r.Get("/order/{id}/file-link", h.HandleGetFileLinks)
		r.Post("/order/{id}/send", h.HandleSendOrder)

		r.Get("/kinds", h.HandleListKinds)
		r.Post("/kinds/sync", h.HandleSyncKinds)

		if ws != nil {
			r.Handle("/ws", ws)
		}
	})

	return &Router{
		router: r,
		server: &http.Server{
			Addr:              conf.RunAddress,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (r *Router) Handler() http.Handler {
	return r.router
}

func (r *Router) ListenAndServe() error {
	err := r.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}
