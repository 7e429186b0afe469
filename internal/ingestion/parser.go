package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/event"
)

// ParseOperation decodes a stored or transported operation payload into its
// typed form. op_type strings match event.OpType.String(); payloads are the
// JSON the core wrote into the envelope, so this is the exact inverse used
// during event-log replay.
func ParseOperation(opType string, data []byte) (event.Operation, error) {
	var op event.Operation
	switch opType {
	case "IssueToken":
		op = &event.IssueToken{}
	case "PurchaseTokens":
		op = &event.PurchaseTokens{}
	case "TransferTokens":
		op = &event.TransferTokens{}
	case "SetUnitPrice":
		op = &event.SetUnitPrice{}
	case "ConfirmDeposit":
		op = &event.ConfirmDeposit{}
	case "CreateListing":
		op = &event.CreateListing{}
	case "BuyListing":
		op = &event.BuyListing{}
	case "CancelListing":
		op = &event.CancelListing{}
	case "CreateAuction":
		op = &event.CreateAuction{}
	case "PlaceBid":
		op = &event.PlaceBid{}
	case "EndAuction":
		op = &event.EndAuction{}
	case "Stake":
		op = &event.Stake{}
	case "Unstake":
		op = &event.Unstake{}
	case "ClaimRewards":
		op = &event.ClaimRewards{}
	case "SetRewardRate":
		op = &event.SetRewardRate{}
	case "FundRewardReserve":
		op = &event.FundRewardReserve{}
	default:
		return nil, fmt.Errorf("unknown op type: %s", opType)
	}

	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("parse %s: %w", opType, err)
	}
	return op, nil
}

// bridgeDepositJSON is the wire format the payment bridge publishes.
// Field names use snake_case to match the upstream producer; timestamps are
// epoch microseconds.
type bridgeDepositJSON struct {
	DepositID   string `json:"deposit_id"`
	HolderID    string `json:"holder_id"`
	Amount      int64  `json:"amount"`
	Partition   string `json:"partition"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseBridgeDeposit converts a bridge message into a ConfirmDeposit
// operation.
func ParseBridgeDeposit(data []byte) (*event.ConfirmDeposit, error) {
	var j bridgeDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse bridge deposit: %w", err)
	}

	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	holderID, err := uuid.Parse(j.HolderID)
	if err != nil {
		return nil, fmt.Errorf("parse holder_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %d", j.Amount)
	}
	if j.Partition == "" {
		return nil, fmt.Errorf("deposit partition is required")
	}
	if j.Sequence <= 0 {
		return nil, fmt.Errorf("deposit sequence must be positive: %d", j.Sequence)
	}

	return &event.ConfirmDeposit{
		DepositID: depositID,
		Actor:     holderID,
		Amount:    j.Amount,
		Partition: j.Partition,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
