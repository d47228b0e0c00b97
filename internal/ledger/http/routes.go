package ledgerhttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// MountRoutes registers the ledger API under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	// Balance-moving and batch endpoints get a tighter per-tenant budget.
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(h.rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "rate_limited", "")
		}),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.tenantMiddleware)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.listAccounts)
			r.Post("/", h.createAccount)
			r.Get("/{id}", h.getAccount)
			r.Patch("/{id}", h.updateAccount)
			r.Delete("/{id}", h.deleteAccount)
			r.Get("/{id}/statement", h.accountStatement)
			r.Get("/{id}/verify", h.verifyAccount)
		})

		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.listMovements)
			r.Post("/", h.createMovement)
			r.Get("/{id}", h.getMovement)
			r.Delete("/{id}", h.deleteMovement)
		})

		r.With(limiter).Post("/transfers", h.createTransfer)

		r.Route("/payables", h.billRoutes(ledger.BillPayable))
		r.Route("/receivables", h.billRoutes(ledger.BillReceivable))

		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", h.listRecurring)
			r.Post("/", h.createRecurring)
			r.With(limiter).Post("/generate", h.generateRecurring)
			r.Get("/{id}", h.getRecurring)
			r.Patch("/{id}", h.updateRecurring)
			r.Delete("/{id}", h.deleteRecurring)
			r.Post("/{id}/deactivate", h.deactivateRecurring)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.listAlerts)
			r.Get("/unread-count", h.unreadAlerts)
			r.Post("/read-all", h.markAllAlertsRead)
			r.With(limiter).Post("/scan", h.scanAlerts)
			r.Post("/{id}/read", h.markAlertRead)
		})

		r.Get("/dashboard/summary", h.dashboardSummary)
		r.Get("/dashboard/cashflow", h.dashboardCashFlow)
	})
}

func (h *Handler) rateLimitKey(r *http.Request) (string, error) {
	if tenantID := tenantOf(r); tenantID > 0 {
		return "tenant:" + strconv.FormatInt(tenantID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
