package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/prism-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса prism.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.Device)

			r.Get("/balance", h.GetBalance)
			r.Post("/balance", h.SetBalance)
			r.Post("/balance/accrue", h.Accrue)

			r.Get("/rewards", h.ListRewards)
			r.Post("/rewards/{id}/redeem", h.Redeem)

			r.Get("/tickets", h.ListTickets)
			r.Post("/tickets/{id}/use", h.UseTicket)
			r.Post("/tickets/{id}/code", h.RenderTicketCode)
		})

		r.Post("/analysis/report", h.BuildReport)
		r.Post("/analysis/suggestions", h.Suggest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
