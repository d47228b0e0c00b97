package ledgerhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/transfers"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type createMovementRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Kind        string          `json:"kind" validate:"required,oneof=entrada saida"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"required,max=255"`
	CategoryID  *int64          `json:"category_id" validate:"omitempty,gt=0"`
}

type transferRequest struct {
	FromAccountID int64           `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64           `json:"to_account_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description   string          `json:"description" validate:"max=255"`
	CategoryID    *int64          `json:"category_id" validate:"omitempty,gt=0"`
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter := ledger.MovementFilter{Kind: ledger.MovementKind(r.URL.Query().Get("kind"))}
	var err error
	if filter.AccountID, err = queryInt64(r, "account_id"); err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if queryBool(r, "include_deleted") {
		filter.Scope = ledger.IncludeDeleted
	}
	list, err := h.svc.Movements.List(r.Context(), tenantOf(r), filter)
	h.respond(w, r, http.StatusOK, mapSlice(list, toMovementView), err)
}

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	mv, err := h.svc.Movements.CreateManual(r.Context(), movements.ManualInput{
		TenantID:    tenantOf(r),
		AccountID:   req.AccountID,
		Kind:        ledger.MovementKind(req.Kind),
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	})
	h.respond(w, r, http.StatusCreated, toMovementView(mv), err)
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	mv, err := h.svc.Movements.Get(r.Context(), tenantOf(r), id)
	h.respond(w, r, http.StatusOK, toMovementView(mv), err)
}

func (h *Handler) deleteMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	h.respond(w, r, http.StatusNoContent, nil, h.svc.Movements.SoftDelete(r.Context(), tenantOf(r), id))
}

// createTransfer honours an optional Idempotency-Key: a replayed key is
// rejected with 409 and a failed transfer releases its key for retry.
func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	tenantID := tenantOf(r)
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), tenantID, transferModule, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				h.respond(w, r, 0, nil, ledger.Conflictf("idempotency key %q already used", key))
				return
			}
			h.respond(w, r, 0, nil, ledger.Internal("claim idempotency key", err))
			return
		}
	}

	res, err := h.svc.Transfers.Transfer(r.Context(), transfers.Input{
		TenantID:      tenantID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Date:          date,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
	})
	if err != nil && key != "" && h.idempotency != nil {
		if delErr := h.idempotency.Delete(r.Context(), tenantID, transferModule, key); delErr != nil {
			h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
		}
	}
	h.respond(w, r, http.StatusCreated, toTransferView(res), err)
}
