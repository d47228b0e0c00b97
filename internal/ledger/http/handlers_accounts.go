package ledgerhttp

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/accounts"
)

type createAccountRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	BankName       string          `json:"bank_name" validate:"max=120"`
	BankCode       string          `json:"bank_code" validate:"max=10"`
	Agency         string          `json:"agency" validate:"max=20"`
	Number         string          `json:"number" validate:"max=30"`
	Type           string          `json:"type" validate:"omitempty,oneof=corrente poupanca investimento caixa"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type updateAccountRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=120"`
	BankName *string `json:"bank_name" validate:"omitempty,max=120"`
	BankCode *string `json:"bank_code" validate:"omitempty,max=10"`
	Agency   *string `json:"agency" validate:"omitempty,max=20"`
	Number   *string `json:"number" validate:"omitempty,max=30"`
	Type     *string `json:"type" validate:"omitempty,oneof=corrente poupanca investimento caixa"`
	Active   *bool   `json:"active"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Accounts.List(r.Context(), tenantOf(r), queryBool(r, "active"))
	h.respond(w, r, http.StatusOK, mapSlice(list, toAccountView), err)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	acc, err := h.svc.Accounts.Create(r.Context(), accounts.CreateInput{
		TenantID:       tenantOf(r),
		Name:           req.Name,
		BankName:       req.BankName,
		BankCode:       req.BankCode,
		Agency:         req.Agency,
		Number:         req.Number,
		Type:           req.Type,
		OpeningBalance: req.OpeningBalance,
	})
	h.respond(w, r, http.StatusCreated, toAccountView(acc), err)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	acc, err := h.svc.Accounts.Get(r.Context(), tenantOf(r), id)
	h.respond(w, r, http.StatusOK, toAccountView(acc), err)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	var req updateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	acc, err := h.svc.Accounts.Update(r.Context(), tenantOf(r), id, accounts.UpdateInput{
		Name:     req.Name,
		BankName: req.BankName,
		BankCode: req.BankCode,
		Agency:   req.Agency,
		Number:   req.Number,
		Type:     req.Type,
		Active:   req.Active,
	})
	h.respond(w, r, http.StatusOK, toAccountView(acc), err)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	h.respond(w, r, http.StatusNoContent, nil, h.svc.Accounts.SoftDelete(r.Context(), tenantOf(r), id))
}

func (h *Handler) accountStatement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	st, err := h.svc.Accounts.Statement(r.Context(), tenantOf(r), id, from, to)
	h.respond(w, r, http.StatusOK, toStatementView(st), err)
}

func (h *Handler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	check, err := h.svc.Movements.Verify(r.Context(), tenantOf(r), id)
	h.respond(w, r, http.StatusOK, toCheckView(check), err)
}
