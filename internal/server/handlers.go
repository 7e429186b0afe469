package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"FanLedger/internal/core"
	"FanLedger/internal/event"
)

// receiptResponse is the JSON form of a settlement receipt.
type receiptResponse struct {
	Sequence   int64            `json:"sequence"`
	OpType     string           `json:"op_type"`
	ResourceID uuid.UUID        `json:"resource_id"`
	StateHash  string           `json:"state_hash"`
	Amounts    map[string]int64 `json:"amounts,omitempty"`
}

func receiptJSON(receipt *core.Receipt) receiptResponse {
	return receiptResponse{
		Sequence:   receipt.Sequence,
		OpType:     receipt.OpType.String(),
		ResourceID: receipt.ResourceID,
		StateHash:  hex.EncodeToString(receipt.StateHash[:]),
		Amounts:    receipt.Amounts,
	}
}

// submit pushes the operation through the gateway and writes the receipt.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, op event.Operation, status int) {
	receipt, err := s.gateway.Submit(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, receiptJSON(receipt))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Kind: "invalid_body"})
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name, Kind: "invalid_param"})
		return uuid.Nil, false
	}
	return id, true
}

// opID returns the client-supplied idempotency id, or a fresh one. Clients
// that retry must reuse the same op_id to get duplicate protection.
func opID(raw string, w http.ResponseWriter) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.New(), true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid op_id", Kind: "invalid_param"})
		return uuid.Nil, false
	}
	return id, true
}

// --- Token issuer ---

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID         string    `json:"op_id"`
		Actor        uuid.UUID `json:"actor"`
		TokenID      uuid.UUID `json:"token_id"`
		Name         string    `json:"name"`
		Symbol       string    `json:"symbol"`
		SupplyCap    int64     `json:"supply_cap"`
		UnitPrice    int64     `json:"unit_price"`
		PaymentToken uuid.UUID `json:"payment_token"`
		Benefits     []string  `json:"benefits"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	tokenID := body.TokenID
	if tokenID == uuid.Nil {
		tokenID = uuid.New()
	}
	s.submit(w, r, &event.IssueToken{
		OpID: id, Actor: body.Actor, TokenID: tokenID,
		Name: body.Name, Symbol: body.Symbol,
		SupplyCap: body.SupplyCap, UnitPrice: body.UnitPrice,
		PaymentToken: body.PaymentToken, Benefits: body.Benefits,
		Timestamp: time.Now().UTC(),
	}, http.StatusCreated)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	var body struct {
		OpID   string    `json:"op_id"`
		Actor  uuid.UUID `json:"actor"`
		Amount int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.PurchaseTokens{
		OpID: id, Actor: body.Actor, TokenID: tokenID,
		Amount: body.Amount, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleSetUnitPrice(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	var body struct {
		OpID      string    `json:"op_id"`
		Actor     uuid.UUID `json:"actor"`
		UnitPrice int64     `json:"unit_price"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.SetUnitPrice{
		OpID: id, Actor: body.Actor, TokenID: tokenID,
		UnitPrice: body.UnitPrice, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID      string    `json:"op_id"`
		Actor     uuid.UUID `json:"actor"`
		TokenID   uuid.UUID `json:"token_id"`
		Recipient uuid.UUID `json:"recipient"`
		Amount    int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.TransferTokens{
		OpID: id, Actor: body.Actor, TokenID: body.TokenID,
		Recipient: body.Recipient, Amount: body.Amount,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// handleConfirmDeposit is an admin path mirroring the bridge stream; it uses
// the same partitioned sequence numbers, so manual use must not race the
// bridge consumer on the same partition.
func (s *Server) handleConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DepositID uuid.UUID `json:"deposit_id"`
		Actor     uuid.UUID `json:"actor"`
		Amount    int64     `json:"amount"`
		Partition string    `json:"partition"`
		Sequence  int64     `json:"sequence"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	depositID := body.DepositID
	if depositID == uuid.Nil {
		depositID = uuid.New()
	}
	s.submit(w, r, &event.ConfirmDeposit{
		DepositID: depositID, Actor: body.Actor, Amount: body.Amount,
		Partition: body.Partition, Sequence: body.Sequence,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// --- Marketplace ---

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID      string    `json:"op_id"`
		Actor     uuid.UUID `json:"actor"`
		TokenID   uuid.UUID `json:"token_id"`
		Amount    int64     `json:"amount"`
		UnitPrice int64     `json:"unit_price"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.CreateListing{
		OpID: id, Actor: body.Actor, ListingID: uuid.New(),
		TokenID: body.TokenID, Amount: body.Amount, UnitPrice: body.UnitPrice,
		Timestamp: time.Now().UTC(),
	}, http.StatusCreated)
}

func (s *Server) handleBuyListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := urlUUID(w, r, "listingID")
	if !ok {
		return
	}
	var body struct {
		OpID   string    `json:"op_id"`
		Actor  uuid.UUID `json:"actor"`
		Amount int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.BuyListing{
		OpID: id, Actor: body.Actor, ListingID: listingID,
		Amount: body.Amount, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := urlUUID(w, r, "listingID")
	if !ok {
		return
	}
	var body struct {
		OpID  string    `json:"op_id"`
		Actor uuid.UUID `json:"actor"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.CancelListing{
		OpID: id, Actor: body.Actor, ListingID: listingID,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// --- Auction house ---

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID            string    `json:"op_id"`
		Actor           uuid.UUID `json:"actor"`
		TokenID         uuid.UUID `json:"token_id"`
		LotAmount       int64     `json:"lot_amount"`
		ReservePrice    int64     `json:"reserve_price"`
		DurationSeconds int64     `json:"duration_seconds"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.CreateAuction{
		OpID: id, Actor: body.Actor, AuctionID: uuid.New(),
		TokenID: body.TokenID, LotAmount: body.LotAmount,
		ReservePrice: body.ReservePrice, Duration: body.DurationSeconds,
		Timestamp: time.Now().UTC(),
	}, http.StatusCreated)
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlUUID(w, r, "auctionID")
	if !ok {
		return
	}
	var body struct {
		OpID   string    `json:"op_id"`
		Actor  uuid.UUID `json:"actor"`
		Amount int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.PlaceBid{
		OpID: id, Actor: body.Actor, AuctionID: auctionID,
		Amount: body.Amount, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleEndAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlUUID(w, r, "auctionID")
	if !ok {
		return
	}
	var body struct {
		OpID  string    `json:"op_id"`
		Actor uuid.UUID `json:"actor"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.EndAuction{
		OpID: id, Actor: body.Actor, AuctionID: auctionID,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// --- Staking ---

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID    string    `json:"op_id"`
		Actor   uuid.UUID `json:"actor"`
		TokenID uuid.UUID `json:"token_id"`
		Amount  int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.Stake{
		OpID: id, Actor: body.Actor, TokenID: body.TokenID,
		Amount: body.Amount, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID    string    `json:"op_id"`
		Actor   uuid.UUID `json:"actor"`
		TokenID uuid.UUID `json:"token_id"`
		Amount  int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.Unstake{
		OpID: id, Actor: body.Actor, TokenID: body.TokenID,
		Amount: body.Amount, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID    string    `json:"op_id"`
		Actor   uuid.UUID `json:"actor"`
		TokenID uuid.UUID `json:"token_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.ClaimRewards{
		OpID: id, Actor: body.Actor, TokenID: body.TokenID,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := urlUUID(w, r, "tokenID")
	if !ok {
		return
	}
	var body struct {
		OpID  string    `json:"op_id"`
		Actor uuid.UUID `json:"actor"`
		Rate  int64     `json:"rate"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.SetRewardRate{
		OpID: id, Actor: body.Actor, TokenID: tokenID,
		Rate: body.Rate, Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) handleFundReserve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OpID    string    `json:"op_id"`
		Actor   uuid.UUID `json:"actor"`
		TokenID uuid.UUID `json:"token_id"`
		Amount  int64     `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, ok := opID(body.OpID, w)
	if !ok {
		return
	}
	s.submit(w, r, &event.FundRewardReserve{
		OpID: id, Actor: body.Actor, TokenID: body.TokenID, Amount: body.Amount,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}
