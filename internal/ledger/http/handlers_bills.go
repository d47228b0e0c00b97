package ledgerhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type createBillRequest struct {
	PartyID     *int64          `json:"party_id" validate:"omitempty,gt=0"`
	CategoryID  *int64          `json:"category_id" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"required,max=255"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	AccountID   *int64          `json:"account_id" validate:"omitempty,gt=0"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

type updateBillRequest struct {
	PartyID     *int64           `json:"party_id" validate:"omitempty,gt=0"`
	CategoryID  *int64           `json:"category_id" validate:"omitempty,gt=0"`
	Description *string          `json:"description" validate:"omitempty,max=255"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	AccountID   *int64           `json:"account_id" validate:"omitempty,gt=0"`
	Notes       *string          `json:"notes" validate:"omitempty,max=1000"`
}

type settleRequest struct {
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaidDate      string          `json:"paid_date" validate:"omitempty,datetime=2006-01-02"`
	AccountID     *int64          `json:"account_id" validate:"omitempty,gt=0"`
	PaymentMethod string          `json:"payment_method" validate:"max=40"`
}

// billRoutes mounts the payable or receivable resource for kind.
func (h *Handler) billRoutes(kind ledger.BillKind) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.listBills(kind))
		r.Post("/", h.createBill(kind))
		r.Get("/{id}", h.getBill(kind))
		r.Patch("/{id}", h.updateBill(kind))
		r.Delete("/{id}", h.deleteBill(kind))
		r.Post("/{id}/settle", h.settleBill(kind))
	}
}

func (h *Handler) listBills(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page")
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		perPage, err := queryInt(r, "per_page")
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		pagination := shared.NewPagination(page, perPage, 0)
		filter := ledger.BillFilter{
			Status: ledger.BillStatus(r.URL.Query().Get("status")),
			Limit:  pagination.PerPage,
			Offset: pagination.Offset(),
		}
		if filter.PartyID, err = queryInt64(r, "party_id"); err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		if filter.DueFrom, err = queryDate(r, "due_from"); err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		if filter.DueTo, err = queryDate(r, "due_to"); err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		bills, err := h.svc.Bills.List(r.Context(), kind, tenantOf(r), filter)
		h.respond(w, r, http.StatusOK, billPage{Items: mapSlice(bills, toBillView), Pagination: pagination}, err)
	}
}

func (h *Handler) createBill(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBillRequest
		if !h.decode(w, r, &req) {
			return
		}
		due, err := parseDate("due_date", req.DueDate)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		bill, err := h.svc.Bills.Create(r.Context(), settlement.CreateInput{
			TenantID:    tenantOf(r),
			Kind:        kind,
			PartyID:     req.PartyID,
			CategoryID:  req.CategoryID,
			Description: req.Description,
			Amount:      req.Amount,
			DueDate:     due,
			AccountID:   req.AccountID,
			Notes:       req.Notes,
		})
		h.respond(w, r, http.StatusCreated, toBillView(bill), err)
	}
}

func (h *Handler) getBill(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		bill, err := h.svc.Bills.Get(r.Context(), kind, tenantOf(r), id)
		h.respond(w, r, http.StatusOK, toBillView(bill), err)
	}
}

func (h *Handler) updateBill(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		var req updateBillRequest
		if !h.decode(w, r, &req) {
			return
		}
		due, err := parseOptionalDate("due_date", req.DueDate)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		bill, err := h.svc.Bills.Update(r.Context(), kind, tenantOf(r), id, settlement.UpdateInput{
			PartyID:     req.PartyID,
			CategoryID:  req.CategoryID,
			Description: req.Description,
			Amount:      req.Amount,
			DueDate:     due,
			AccountID:   req.AccountID,
			Notes:       req.Notes,
		})
		h.respond(w, r, http.StatusOK, toBillView(bill), err)
	}
}

func (h *Handler) deleteBill(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		h.respond(w, r, http.StatusNoContent, nil, h.svc.Bills.Delete(r.Context(), kind, tenantOf(r), id))
	}
}

func (h *Handler) settleBill(kind ledger.BillKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		var req settleRequest
		if !h.decode(w, r, &req) {
			return
		}
		paidDate, err := parseDate("paid_date", req.PaidDate)
		if err != nil {
			h.respond(w, r, 0, nil, err)
			return
		}
		res, err := h.svc.Bills.Settle(r.Context(), kind, settlement.SettleInput{
			TenantID:      tenantOf(r),
			ID:            id,
			PaidAmount:    req.PaidAmount,
			PaidDate:      paidDate,
			AccountID:     req.AccountID,
			PaymentMethod: req.PaymentMethod,
			ActorID:       actorOf(r),
		})
		h.respond(w, r, http.StatusOK, toSettleView(res), err)
	}
}
