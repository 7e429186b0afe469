package server

import (
	"encoding/json"
	"net/http"

	"FanLedger/internal/ledger"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{
		Error: err.Error(),
		Kind:  kind.String(),
	})
}

func statusForKind(kind ledger.Kind) int {
	switch kind {
	case ledger.KindInvalidAmount, ledger.KindInvalidDuration:
		return http.StatusBadRequest
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindResourceNotFound:
		return http.StatusNotFound
	case ledger.KindDuplicateOperation,
		ledger.KindAlreadyListed,
		ledger.KindAlreadySettled,
		ledger.KindResourceInactive,
		ledger.KindAuctionExpired,
		ledger.KindAuctionNotYetExpired:
		return http.StatusConflict
	case ledger.KindInsufficientBalance,
		ledger.KindInsufficientFunds,
		ledger.KindSupplyExceeded,
		ledger.KindBidTooLow,
		ledger.KindInsufficientRewardReserve:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
