package ledgerhttp

import (
	"net/http"
)

func (h *Handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.now()
	}
	summary, err := h.svc.Dashboard.Summary(r.Context(), tenantOf(r), asOf)
	h.respond(w, r, http.StatusOK, summary, err)
}

func (h *Handler) dashboardCashFlow(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.now()
	}
	months, err := queryInt(r, "months")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	flow, err := h.svc.Dashboard.CashFlow(r.Context(), tenantOf(r), asOf, months)
	h.respond(w, r, http.StatusOK, flow, err)
}
