package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"FanLedger/internal/config"
	"FanLedger/internal/core"
	"FanLedger/internal/ingestion"
	"FanLedger/internal/ledger"
	"FanLedger/internal/observability"
	"FanLedger/internal/persistence"
	"FanLedger/internal/projection"
	"FanLedger/internal/query"
	"FanLedger/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (empty: defaults + FAN_ env overrides)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var log zerolog.Logger
	if cfg.Logging.File != "" {
		log = observability.NewRotatingLogger("fanledger", cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	} else {
		log = observability.NewLogger("fanledger")
	}
	log.Info().Msg("FanLedger starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	// --- Migrations ---
	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: snapshot + replay ---
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot failed, replaying from genesis")
		snap = nil
	}

	replayFrom := int64(1)
	if snap != nil {
		replayFrom = snap.Sequence + 1
		log.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		log.Info().Msg("no snapshot found, cold start")
	}

	// --- Channels ---
	// The persist channel blocks when full (backpressure into the core); the
	// projection and publish channels drop and recover via rebuild.
	persistCoreChan := make(chan core.CoreOutput, cfg.Channels.PersistSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Channels.ProjectionSize)

	// Bridge channels keep core decoupled from the worker packages.
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Channels.PersistSize)
	projectionWorkerChan := make(chan projection.Output, cfg.Channels.ProjectionSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.Channels.PublishSize)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Settlement core ---
	// The DB dedup tier attaches after replay: every replayed operation is
	// already in the event log and would otherwise be rejected.
	settlementCore := core.NewSettlementCore(core.Config{
		StartSequence:       1,
		FeeBps:              cfg.Core.FeeBps,
		MinAuctionDuration:  cfg.Core.MinAuctionDuration,
		MaxAuctionDuration:  cfg.Core.MaxAuctionDuration,
		DefaultRewardRate:   cfg.Core.DefaultRewardRate,
		IdempotencyCapacity: cfg.Core.IdempotencyCapacity,
	}, persistCoreChan, projectionCoreChan, nil, metrics)

	if snap != nil {
		restoreFromSnapshot(settlementCore, snap, log)
	}

	// Replay re-emits core outputs that are already in the event log; drain
	// them instead of re-persisting. The drain stops before any live producer
	// starts, so it can never swallow live traffic.
	stopDrain := make(chan struct{})
	drainDone := drainDuringReplay(stopDrain, persistCoreChan, projectionCoreChan)

	replayed, err := replayFromLog(ctx, snapMgr, settlementCore, replayFrom, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("event replay failed")
	}

	close(stopDrain)
	<-drainDone
	if replayed > 0 {
		log.Info().Int64("count", replayed).Int64("sequence", settlementCore.GetSequence()).Msg("replayed events")
	}

	if snap != nil && replayed == 0 {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := settlementCore.GetStateHash(); actual != expected {
			log.Fatal().
				Hex("expected", expected[:]).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after snapshot restore")
		}
		log.Info().Msg("state hash verified after restore")
	}

	settlementCore.SetDBChecker(persistence.NewPostgresIdempotencyChecker(db))

	// --- Gateway (single-writer) ---
	gateway := core.NewGateway(settlementCore, cfg.Core.InboxSize, observability.NewLogger("gateway"))

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Str("url", cfg.NATS.URL).Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure nats streams")
	}

	rawChan := make(chan ingestion.RawMessage, 4096)
	subscriber := ingestion.NewBridgeSubscriber(js, rawChan)
	if err := subscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge subscribe")
	}

	publisher := ingestion.NewPublisher(js, publishChan)

	// --- Services ---
	queryService := query.NewService(db, gateway)
	httpServer := server.NewServer(cfg.HTTP.Addr, gateway, queryService, healthChecker)

	// --- Goroutines ---
	errChan := make(chan error, 8)

	go func() { errChan <- gateway.Run(ctx) }()

	persistWorker := persistence.NewWorker(db, persistWorkerChan, cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout, metrics)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewWorker(db, projectionWorkerChan)
	go func() { errChan <- projWorker.Run(ctx) }()

	go func() { errChan <- publisher.Run(ctx) }()

	go bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan, persistWorkerChan, projectionWorkerChan, publishChan, metrics)

	go runBridgeIngestion(ctx, rawChan, gateway, log)

	go func() { errChan <- httpServer.Start(ctx) }()

	go runPeriodicSnapshots(ctx, gateway, snapMgr, cfg.Persistence.SnapshotInterval, metrics, log)

	go runMetricsServer(ctx, cfg.HTTP.MetricsAddr, errChan, log)

	go reportChannelGauges(ctx, metrics, persistCoreChan, projectionCoreChan, publishChan)

	healthChecker.SetReady(true)
	log.Info().
		Str("http", cfg.HTTP.Addr).
		Str("metrics", cfg.HTTP.MetricsAddr).
		Int64("sequence", settlementCore.GetSequence()).
		Msg("FanLedger ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("component failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop intake first, then let the workers drain their channels, then
	// snapshot the quiesced core.
	subscriber.Stop()
	cancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := takeSnapshot(shutdownCtx, settlementCore.CreateSnapshotState(), snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("FanLedger shutdown complete")
}

// bridgeCoreOutputs converts core outputs into the persistence, projection and
// publish formats. The persist send blocks; the projection and publish sends
// drop when full and count the drop.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.Output,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}
			env := output.Envelope

			pOutput := persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       env.Sequence,
					OpType:         env.OpType.String(),
					IdempotencyKey: env.IdempotencyKey,
					ActorID:        env.ActorID.String(),
					ResourceID:     env.ResourceID.String(),
					Payload:        env.Payload,
					StateHash:      env.StateHash[:],
					PrevHash:       env.PrevHash[:],
					Timestamp:      env.Timestamp,
					SourceSequence: env.SourceSequence,
				},
			}
			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalRows = append(pOutput.JournalRows, persistence.JournalRow{
						JournalID:     j.JournalID.String(),
						BatchID:       j.BatchID.String(),
						OpRef:         j.OpRef,
						Sequence:      j.Sequence,
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						TokenID:       j.TokenID.String(),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			persistOut <- pOutput

			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       env.Sequence,
				OpType:         env.OpType.String(),
				IdempotencyKey: env.IdempotencyKey,
				ActorID:        env.ActorID.String(),
				ResourceID:     env.ResourceID.String(),
				Amounts:        output.Amounts,
				StateHash:      env.StateHash[:],
				Timestamp:      env.Timestamp,
			}:
			default:
				metrics.PublishDrops.Inc()
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}
			env := output.Envelope

			pOutput := projection.Output{
				Sequence:   env.Sequence,
				OpType:     env.OpType.String(),
				ActorID:    env.ActorID.String(),
				ResourceID: env.ResourceID.String(),
				Amounts:    output.Amounts,
				Timestamp:  env.Timestamp.UnixMicro(),
			}
			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.Journals = append(pOutput.Journals, projection.JournalEntry{
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						TokenID:       j.TokenID.String(),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
					})
				}
			}

			select {
			case projectionOut <- pOutput:
			default:
				metrics.ProjectionDrops.WithLabelValues("main").Inc()
			}
		}
	}
}

// drainDuringReplay discards core outputs emitted while replaying. After the
// stop signal it empties whatever is still buffered and exits; no producer
// runs between replay finishing and the bridge starting.
func drainDuringReplay(stop <-chan struct{}, persistChan, projectionChan <-chan core.CoreOutput) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-persistChan:
			case <-projectionChan:
			case <-stop:
				for {
					select {
					case <-persistChan:
					case <-projectionChan:
					default:
						return
					}
				}
			}
		}
	}()
	return done
}

// runBridgeIngestion parses bridge deposits off NATS and submits them to the
// core. Ack on success and on duplicates; Nak everything else so JetStream
// redelivers (a sequence gap heals once the predecessor arrives).
func runBridgeIngestion(ctx context.Context, rawChan <-chan ingestion.RawMessage, gw *core.Gateway, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			op, err := ingestion.ParseBridgeDeposit(raw.Data)
			if err != nil {
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("unparseable bridge deposit")
				raw.AckFunc()
				continue
			}

			if _, err := gw.Submit(ctx, op); err != nil {
				if ledger.IsKind(err, ledger.KindDuplicateOperation) {
					raw.AckFunc()
					continue
				}
				log.Warn().Err(err).
					Str("deposit", op.DepositID.String()).
					Str("partition", op.Partition).
					Msg("bridge deposit rejected, will redeliver")
				raw.NakFunc()
				continue
			}
			raw.AckFunc()
		}
	}
}

// restoreFromSnapshot converts persisted snapshot data into the core's
// in-memory form.
func restoreFromSnapshot(c *core.SettlementCore, snap *persistence.SnapshotData, log zerolog.Logger) {
	coreSnap := &core.SnapshotState{
		Sequence:        snap.Sequence,
		Balances:        make(map[ledger.AccountKey]int64, len(snap.Balances)),
		Tokens:          snap.Tokens,
		Listings:        snap.Listings,
		Auctions:        snap.Auctions,
		Staking:         snap.Staking,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(coreSnap.StateHash[:], snap.StateHash)

	for _, ab := range snap.Balances {
		coreSnap.Balances[ab.Key] = ab.Balance
	}

	c.RestoreFromSnapshot(coreSnap)
	if len(snap.IdempotencyKeys) > 0 {
		c.WarmLRU(snap.IdempotencyKeys)
	}
	log.Info().
		Int64("sequence", snap.Sequence).
		Int("balances", len(snap.Balances)).
		Int("lru_keys", len(snap.IdempotencyKeys)).
		Msg("restored state from snapshot")
}

// replayFromLog replays the event log into the core starting at fromSequence.
func replayFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	c *core.SettlementCore,
	fromSequence int64,
	metrics *observability.Metrics,
) (int64, error) {
	const batchSize = 1000
	start := time.Now()
	var total int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return total, fmt.Errorf("load events from %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			op, err := ingestion.ParseOperation(row.OpType, row.Payload)
			if err != nil {
				return total, fmt.Errorf("parse event seq=%d type=%s: %w", row.Sequence, row.OpType, err)
			}
			if _, err := c.Apply(op); err != nil {
				return total, fmt.Errorf("replay seq=%d type=%s: %w", row.Sequence, row.OpType, err)
			}
			total++
			metrics.ReplayOpsTotal.Inc()
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	metrics.ReplayDuration.Set(time.Since(start).Seconds())
	return total, nil
}

// runPeriodicSnapshots captures a snapshot every interval operations. State
// capture runs on the core goroutine via the gateway, never concurrently
// with Apply.
func runPeriodicSnapshots(
	ctx context.Context,
	gw *core.Gateway,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var lastSnapshotSeq int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var coreSnap *core.SnapshotState
			err := gw.View(ctx, func(c *core.SettlementCore) {
				if c.GetSequence()-lastSnapshotSeq >= interval {
					coreSnap = c.CreateSnapshotState()
				}
			})
			if err != nil || coreSnap == nil {
				continue
			}

			if err := takeSnapshot(ctx, coreSnap, snapMgr, metrics); err != nil {
				log.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSnapshotSeq = coreSnap.Sequence
			log.Info().Int64("sequence", coreSnap.Sequence).Msg("periodic snapshot saved")
		}
	}
}

// takeSnapshot converts core state into the persisted snapshot form and saves
// it. Snapshots captured from live state are marked verified immediately.
func takeSnapshot(
	ctx context.Context,
	coreSnap *core.SnapshotState,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snapData := &persistence.SnapshotData{
		Sequence:        coreSnap.Sequence,
		StateHash:       coreSnap.StateHash[:],
		Balances:        make([]persistence.AccountBalance, 0, len(coreSnap.Balances)),
		Tokens:          coreSnap.Tokens,
		Listings:        coreSnap.Listings,
		Auctions:        coreSnap.Auctions,
		Staking:         coreSnap.Staking,
		SequenceState:   coreSnap.SequenceState,
		IdempotencyKeys: coreSnap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}
	for key, balance := range coreSnap.Balances {
		snapData.Balances = append(snapData.Balances, persistence.AccountBalance{Key: key, Balance: balance})
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	metrics.SnapshotTaken.Inc()
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	return nil
}

func runMetricsServer(ctx context.Context, addr string, errChan chan<- error, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server: %w", err)
	}
}

func reportChannelGauges(
	ctx context.Context,
	metrics *observability.Metrics,
	persistChan, projectionChan chan core.CoreOutput,
	publishChan chan ingestion.PublishableEvent,
) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
			metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
			metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
		}
	}
}
