package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"FanLedger/internal/core"
	"FanLedger/internal/observability"
	"FanLedger/internal/query"
)

// Server is the HTTP API surface: operation submission (through the
// gateway) plus queries, health and admin endpoints.
type Server struct {
	addr    string
	gateway *core.Gateway
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
	httpSrv *http.Server
}

func NewServer(addr string, gateway *core.Gateway, queries *query.Service, health *observability.HealthChecker) *Server {
	return &Server{
		addr:    addr,
		gateway: gateway,
		queries: queries,
		health:  health,
		log:     observability.NewLogger("http"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", s.handleIssueToken)
			r.Get("/{tokenID}", s.handleGetToken)
			r.Post("/{tokenID}/purchase", s.handlePurchase)
			r.Post("/{tokenID}/price", s.handleSetUnitPrice)
			r.Post("/{tokenID}/reward-rate", s.handleSetRewardRate)
		})

		r.Post("/transfers", s.handleTransfer)
		r.Post("/deposits", s.handleConfirmDeposit)

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", s.handleCreateListing)
			r.Get("/{listingID}", s.handleGetListing)
			r.Post("/{listingID}/buy", s.handleBuyListing)
			r.Post("/{listingID}/cancel", s.handleCancelListing)
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Post("/", s.handleCreateAuction)
			r.Get("/{auctionID}", s.handleGetAuction)
			r.Post("/{auctionID}/bids", s.handlePlaceBid)
			r.Post("/{auctionID}/end", s.handleEndAuction)
		})

		r.Route("/staking", func(r chi.Router) {
			r.Post("/stake", s.handleStake)
			r.Post("/unstake", s.handleUnstake)
			r.Post("/claim", s.handleClaimRewards)
			r.Post("/reserve", s.handleFundReserve)
			r.Get("/{holderID}/{tokenID}", s.handleGetStake)
		})

		r.Get("/balances/{holderID}/{tokenID}", s.handleGetBalance)
		r.Get("/trades", s.handleTradeHistory)
		r.Get("/journal/{holderID}", s.handleJournalHistory)
		r.Get("/integrity", s.handleIntegrity)
		r.Get("/global-balances", s.handleGlobalBalances)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
