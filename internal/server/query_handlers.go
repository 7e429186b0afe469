package server

import (
	"net/http"
	"strconv"
)

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	holderID, ok := urlUUID(w, r, "holderID")
	if !ok {
		return
	}
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	resp, err := s.queries.GetBalance(r.Context(), holderID, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	resp, err := s.queries.GetToken(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := urlUUID(w, r, "listingID")
	if !ok {
		return
	}
	resp, err := s.queries.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlUUID(w, r, "auctionID")
	if !ok {
		return
	}
	resp, err := s.queries.GetAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	holderID, ok := urlUUID(w, r, "holderID")
	if !ok {
		return
	}
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	resp, err := s.queries.GetStake(r.Context(), holderID, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &n
		}
	}

	trades, err := s.queries.GetTradeHistory(r.Context(), limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	holderID, ok := urlUUID(w, r, "holderID")
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &n
		}
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), holderID, limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journal": entries})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	from := int64(queryInt(r, "from", 0))
	to := int64(queryInt(r, "to", 1<<62))

	report, err := s.queries.VerifyIntegrity(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGlobalBalances(w http.ResponseWriter, r *http.Request) {
	sums, asOf, err := s.queries.GetGlobalBalances(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	balances := make(map[string]int64, len(sums))
	for tokenID, sum := range sums {
		balances[tokenID.String()] = sum
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balances":       balances,
		"as_of_sequence": asOf,
	})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
