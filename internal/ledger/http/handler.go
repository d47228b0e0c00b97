// Package ledgerhttp exposes the ledger services as a tenant-scoped JSON API.
package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/alerts"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/dashboard"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/transfers"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	dateLayout = "2006-01-02"
	// DefaultTenantHeader carries the tenant id resolved by the upstream gateway.
	DefaultTenantHeader = "X-Tenant-ID"
	actorHeader         = "X-Actor-ID"
	idempotencyHeader   = "Idempotency-Key"
	transferModule      = "ledger.transfer"
)

// IdempotencyStore claims request keys so retried writes run once.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, tenantID int64, module, key string) error
	Delete(ctx context.Context, tenantID int64, module, key string) error
}

// Services groups the ledger services served over HTTP.
type Services struct {
	Accounts  *accounts.Service
	Movements *movements.Recorder
	Transfers *transfers.Service
	Bills     *settlement.Service
	Recurring *recurring.Service
	Alerts    *alerts.Service
	Dashboard *dashboard.Service
}

// Options tunes the handler.
type Options struct {
	TenantHeader string
	DueSoonDays  int
}

// Handler serves the ledger API.
type Handler struct {
	logger       *slog.Logger
	svc          Services
	idempotency  IdempotencyStore
	validator    *validator.Validate
	tenantHeader string
	dueSoonDays  int
	now          func() time.Time
}

// NewHandler constructs the ledger HTTP handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, svc Services, idempotency IdempotencyStore, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TenantHeader == "" {
		opts.TenantHeader = DefaultTenantHeader
	}
	return &Handler{
		logger:       logger,
		svc:          svc,
		idempotency:  idempotency,
		validator:    validator.New(),
		tenantHeader: opts.TenantHeader,
		dueSoonDays:  opts.DueSoonDays,
		now:          time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// tenantMiddleware resolves the tenant header into the request context.
func (h *Handler) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(h.tenantHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			httpx.RespondError(w, ledger.Invalidf("header %s must carry a positive tenant id", h.tenantHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), id)))
	})
}

func tenantOf(r *http.Request) int64 {
	id, _ := shared.TenantFromContext(r.Context())
	return id
}

func actorOf(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(actorHeader), 10, 64)
	return id
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ledger.Invalidf("invalid id %q", raw)
	}
	return id, nil
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, ledger.Invalidf("malformed body: %v", err))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ledger.Invalidf("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return ledger.Invalidf("%s", strings.Join(msgs, "; "))
}

// respond writes the success payload or the mapped error, logging internal failures.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("ledger request failed",
				slog.String("method", r.Method), slog.String("path", r.URL.Path),
				slog.Int64("tenant_id", tenantOf(r)), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	httpx.JSON(w, status, payload)
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, ledger.Invalidf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func parseOptionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDate(field, *raw)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledger.Invalidf("%s must be an integer", name)
	}
	return v, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ledger.Invalidf("%s must be an integer", name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	return parseDate(name, r.URL.Query().Get(name))
}
