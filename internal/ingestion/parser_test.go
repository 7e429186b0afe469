package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/event"
	"FanLedger/internal/ingestion"
)

func TestParseBridgeDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"holder_id":    "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(25_000),
		"partition":    "0",
		"sequence":     int64(7),
		"timestamp_us": int64(1_772_000_000_000_000),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	dep, err := ingestion.ParseBridgeDeposit(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if dep.Actor.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("holder: got %s", dep.Actor)
	}
	if dep.Amount != 25_000 {
		t.Errorf("amount: got %d, want 25000", dep.Amount)
	}
	if dep.Partition != "0" || dep.Sequence != 7 {
		t.Errorf("partition/sequence: got %s/%d, want 0/7", dep.Partition, dep.Sequence)
	}
	if !dep.Timestamp.Equal(time.UnixMicro(1_772_000_000_000_000)) {
		t.Errorf("timestamp: got %v", dep.Timestamp)
	}
	if dep.OpType() != event.OpTypeConfirmDeposit {
		t.Errorf("op type: got %v", dep.OpType())
	}
}

func TestParseBridgeDepositRejections(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"deposit_id":   uuid.New().String(),
			"holder_id":    uuid.New().String(),
			"amount":       int64(100),
			"partition":    "0",
			"sequence":     int64(1),
			"timestamp_us": int64(1_772_000_000_000_000),
		}
	}

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"bad deposit id", func(m map[string]interface{}) { m["deposit_id"] = "not-a-uuid" }},
		{"bad holder id", func(m map[string]interface{}) { m["holder_id"] = "xyz" }},
		{"zero amount", func(m map[string]interface{}) { m["amount"] = int64(0) }},
		{"negative amount", func(m map[string]interface{}) { m["amount"] = int64(-5) }},
		{"missing partition", func(m map[string]interface{}) { m["partition"] = "" }},
		{"zero sequence", func(m map[string]interface{}) { m["sequence"] = int64(0) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := base()
			tc.mutate(m)
			data, _ := json.Marshal(m)
			if _, err := ingestion.ParseBridgeDeposit(data); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseOperationRoundTrip(t *testing.T) {
	op := &event.PlaceBid{
		OpID:      uuid.New(),
		Actor:     uuid.New(),
		AuctionID: uuid.New(),
		Amount:    150,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ingestion.ParseOperation(op.OpType().String(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bid, ok := parsed.(*event.PlaceBid)
	if !ok {
		t.Fatalf("expected *event.PlaceBid, got %T", parsed)
	}
	if bid.OpID != op.OpID || bid.Amount != 150 || bid.AuctionID != op.AuctionID {
		t.Errorf("round trip mismatch: %+v", bid)
	}
	if bid.IdempotencyKey() != op.IdempotencyKey() {
		t.Errorf("idempotency key mismatch")
	}
}

func TestParseOperationUnknownType(t *testing.T) {
	if _, err := ingestion.ParseOperation("LiquidatePosition", []byte("{}")); err == nil {
		t.Error("expected error for unknown op type")
	}
}
