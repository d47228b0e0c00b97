// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// StatusFor maps a ledger error kind to its HTTP status.
func StatusFor(err error) int {
	switch ledger.KindOf(err) {
	case "":
		return http.StatusOK
	case ledger.KindInvalidArgument:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict, ledger.KindAlreadySettled, ledger.KindInsufficientFunds:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps ledger errors to HTTP responses using RFC7807. Internal
// failures carry no detail so SQL and driver messages never reach clients.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "", "")
		return
	}
	Problem(w, status, http.StatusText(status), string(ledger.KindOf(err)), err.Error())
}
