package ledgerhttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers ledger endpoints under /api/ledger.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/api/ledger", func(r chi.Router) {
		r.Post("/invoices", h.createInvoice)
		r.Post("/cash-documents", h.createCashDocument)
		r.Post("/cash-documents/{id}/allocations", h.allocate)
		r.Post("/documents/post", h.postDocument)
		r.Post("/allocations/{id}/reverse", h.reverseAllocation)
		r.Post("/gl-entries/{id}/cancel", h.cancelGLEntry)
		r.Get("/accounts/{id}/balance", h.accountBalance)

		r.Get("/mappings/active", h.activeMapping)
		r.Post("/mappings", h.createMapping)
		r.Post("/mappings/default", h.defaultMapping)
		r.Post("/mappings/{id}/activate", h.activateMapping)
	})
}
