package ledgerhttp

import (
	"net/http"
)

type scanRequest struct {
	AsOf        string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	DueSoonDays int    `json:"due_soon_days" validate:"min=0,max=60"`
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	list, err := h.svc.Alerts.List(r.Context(), tenantOf(r), queryBool(r, "unread"), limit)
	h.respond(w, r, http.StatusOK, mapSlice(list, toAlertView), err)
}

func (h *Handler) unreadAlerts(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Alerts.UnreadCount(r.Context(), tenantOf(r))
	h.respond(w, r, http.StatusOK, map[string]int{"unread": count}, err)
}

func (h *Handler) markAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	h.respond(w, r, http.StatusNoContent, nil, h.svc.Alerts.MarkRead(r.Context(), tenantOf(r), id))
}

func (h *Handler) markAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	changed, err := h.svc.Alerts.MarkAllRead(r.Context(), tenantOf(r))
	h.respond(w, r, http.StatusOK, map[string]int64{"updated": changed}, err)
}

func (h *Handler) scanAlerts(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.now()
	}
	days := req.DueSoonDays
	if days == 0 {
		days = h.dueSoonDays
	}
	result, err := h.svc.Alerts.ScanDue(r.Context(), tenantOf(r), asOf, days)
	h.respond(w, r, http.StatusOK, result, err)
}
