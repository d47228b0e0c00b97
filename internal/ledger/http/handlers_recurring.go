package ledgerhttp

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/recurring"
)

type createRecurringRequest struct {
	Kind              string          `json:"kind" validate:"required,oneof=pagar receber"`
	Description       string          `json:"description" validate:"required,max=255"`
	Amount            decimal.Decimal `json:"amount"`
	CategoryID        *int64          `json:"category_id" validate:"omitempty,gt=0"`
	PartyID           *int64          `json:"party_id" validate:"omitempty,gt=0"`
	AccountID         *int64          `json:"account_id" validate:"omitempty,gt=0"`
	Frequency         string          `json:"frequency" validate:"omitempty,oneof=mensal trimestral semestral anual"`
	DayOfMonth        int             `json:"day_of_month" validate:"required,min=1,max=31"`
	StartDate         string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           *string         `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TotalInstallments *int            `json:"total_installments" validate:"omitempty,gt=0"`
}

type updateRecurringRequest struct {
	Description       *string          `json:"description" validate:"omitempty,max=255"`
	Amount            *decimal.Decimal `json:"amount"`
	CategoryID        *int64           `json:"category_id" validate:"omitempty,gt=0"`
	PartyID           *int64           `json:"party_id" validate:"omitempty,gt=0"`
	AccountID         *int64           `json:"account_id" validate:"omitempty,gt=0"`
	Frequency         *string          `json:"frequency" validate:"omitempty,oneof=mensal trimestral semestral anual"`
	DayOfMonth        *int             `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	EndDate           *string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TotalInstallments *int             `json:"total_installments" validate:"omitempty,gt=0"`
	Active            *bool            `json:"active"`
}

type generateRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) listRecurring(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Recurring.List(r.Context(), tenantOf(r), ledger.RecurringFilter{
		Kind:       ledger.BillKind(r.URL.Query().Get("kind")),
		ActiveOnly: queryBool(r, "active"),
	})
	h.respond(w, r, http.StatusOK, mapSlice(list, toRecurringView), err)
}

func (h *Handler) createRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	entry, err := h.svc.Recurring.Create(r.Context(), recurring.CreateInput{
		TenantID:          tenantOf(r),
		Kind:              ledger.BillKind(req.Kind),
		Description:       req.Description,
		Amount:            req.Amount,
		CategoryID:        req.CategoryID,
		PartyID:           req.PartyID,
		AccountID:         req.AccountID,
		Frequency:         ledger.Frequency(req.Frequency),
		DayOfMonth:        req.DayOfMonth,
		StartDate:         start,
		EndDate:           end,
		TotalInstallments: req.TotalInstallments,
	})
	h.respond(w, r, http.StatusCreated, toRecurringView(entry), err)
}

func (h *Handler) getRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	entry, err := h.svc.Recurring.Get(r.Context(), tenantOf(r), id)
	h.respond(w, r, http.StatusOK, toRecurringView(entry), err)
}

func (h *Handler) updateRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	var req updateRecurringRequest
	if !h.decode(w, r, &req) {
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	input := recurring.UpdateInput{
		Description:       req.Description,
		Amount:            req.Amount,
		CategoryID:        req.CategoryID,
		PartyID:           req.PartyID,
		AccountID:         req.AccountID,
		DayOfMonth:        req.DayOfMonth,
		EndDate:           end,
		TotalInstallments: req.TotalInstallments,
		Active:            req.Active,
	}
	if req.Frequency != nil {
		freq := ledger.Frequency(*req.Frequency)
		input.Frequency = &freq
	}
	entry, err := h.svc.Recurring.Update(r.Context(), tenantOf(r), id, input)
	h.respond(w, r, http.StatusOK, toRecurringView(entry), err)
}

func (h *Handler) deactivateRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	entry, err := h.svc.Recurring.Deactivate(r.Context(), tenantOf(r), id)
	h.respond(w, r, http.StatusOK, toRecurringView(entry), err)
}

func (h *Handler) deleteRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	h.respond(w, r, http.StatusNoContent, nil, h.svc.Recurring.Delete(r.Context(), tenantOf(r), id))
}

// generateRecurring is the manual trigger; the scheduler covers every tenant.
func (h *Handler) generateRecurring(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
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
	report, err := h.svc.Recurring.GenerateDue(r.Context(), tenantOf(r), asOf)
	h.respond(w, r, http.StatusOK, report, err)
}
