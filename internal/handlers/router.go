// Package handlers exposes the ledger core over HTTP for the local UI.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type routeRegistrar interface {
	Routes(r chi.Router)
}

func NewRouter(registrars ...routeRegistrar) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	for _, reg := range registrars {
		reg.Routes(router)
	}
	return router
}
