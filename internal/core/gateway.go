package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"FanLedger/internal/event"
	"FanLedger/internal/ledger"
)

// ErrGatewayClosed is returned for submissions after the run loop stopped.
var ErrGatewayClosed = errors.New("gateway closed")

// Submission pairs an operation with its reply channel.
type Submission struct {
	Op    event.Operation
	Reply chan SubmitResult
}

// SubmitResult is the outcome delivered back to the submitter.
type SubmitResult struct {
	Receipt *Receipt
	Err     error
}

type queryRequest struct {
	fn   func(*SettlementCore)
	done chan struct{}
}

// Gateway is the single entry point into the settlement core. Every
// submission and query funnels through one goroutine, which gives the
// HTTP API and the bridge subscriber a strictly serialized view without
// any locking inside the core.
type Gateway struct {
	core    *SettlementCore
	inbox   chan Submission
	queries chan queryRequest
	closed  chan struct{}
	log     zerolog.Logger
}

func NewGateway(core *SettlementCore, inboxSize int, log zerolog.Logger) *Gateway {
	return &Gateway{
		core:    core,
		inbox:   make(chan Submission, inboxSize),
		queries: make(chan queryRequest),
		closed:  make(chan struct{}),
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// Run drains the inbox until ctx is cancelled. It owns the core: nothing
// else may touch core state while Run is live.
func (g *Gateway) Run(ctx context.Context) error {
	defer close(g.closed)

	for {
		select {
		case <-ctx.Done():
			g.log.Info().Int("pending", len(g.inbox)).Msg("gateway stopping")
			return ctx.Err()

		case sub := <-g.inbox:
			receipt, err := g.core.Apply(sub.Op)
			if err != nil {
				g.log.Debug().
					Str("op_type", sub.Op.OpType().String()).
					Str("op_id", sub.Op.IdempotencyKey()).
					Str("kind", ledger.KindOf(err).String()).
					Err(err).
					Msg("operation rejected")
			} else {
				g.log.Debug().
					Str("op_type", sub.Op.OpType().String()).
					Int64("sequence", receipt.Sequence).
					Msg("operation applied")
			}
			sub.Reply <- SubmitResult{Receipt: receipt, Err: err}

		case q := <-g.queries:
			q.fn(g.core)
			close(q.done)
		}
	}
}

// Submit queues an operation and waits for its result.
func (g *Gateway) Submit(ctx context.Context, op event.Operation) (*Receipt, error) {
	sub := Submission{Op: op, Reply: make(chan SubmitResult, 1)}

	select {
	case g.inbox <- sub:
	case <-g.closed:
		return nil, ErrGatewayClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-sub.Reply:
		return res.Receipt, res.Err
	case <-g.closed:
		return nil, ErrGatewayClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// View runs fn on the core goroutine and blocks until it returns. Read-only
// callers use this to observe consistent state between operations.
func (g *Gateway) View(ctx context.Context, fn func(*SettlementCore)) error {
	q := queryRequest{fn: fn, done: make(chan struct{})}

	select {
	case g.queries <- q:
	case <-g.closed:
		return ErrGatewayClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
