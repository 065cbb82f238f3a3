package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/config"
	"github.com/aidecisionlog/server/internal/db"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
	"github.com/aidecisionlog/server/internal/decisionlog/store"
	"github.com/aidecisionlog/server/internal/decisionlog/store/memory"
	sqlitestore "github.com/aidecisionlog/server/internal/decisionlog/store/sqlite"
	"github.com/aidecisionlog/server/internal/grpcapi"
	"github.com/aidecisionlog/server/internal/httpapi"
)

func main() {
	logger := log.New(os.Stdout, "decisionlog-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateLedger(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger
	contract, err := chain.LoadContract(cfg.ContractAddress, cfg.ABIPath)
	if err != nil {
		logger.Fatalf("contract: %v", err)
	}
	client, err := chain.Dial(ctx, cfg.ProviderURL)
	if err != nil {
		logger.Fatalf("ledger: %v", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Fatalf("ledger chain id: %v", err)
	}
	signer, err := chain.NewKeySigner(cfg.PrivateKey, chainID, cfg.AccountAddress)
	if err != nil {
		logger.Fatalf("signer: %v", err)
	}
	logger.Printf("contract %s on chain %s, submitting as %s", contract.Address.Hex(), chainID, signer.Address().Hex())

	// Journal (memory unless a DB path is configured)
	var (
		journal store.JournalStore = memory.NewJournalStore()
		conn    *sql.DB
		writer  *db.Worker
	)
	if cfg.DBPath != "" {
		conn, err = db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			logger.Fatalf("journal db: %v", err)
		}
		defer conn.Close()
		writer = db.NewWorker(conn)
		defer writer.Close()
		journal = sqlitestore.NewJournalStore(conn, writer)
		logger.Printf("submission journal at %s", cfg.DBPath)
	}

	// Services
	submitter := service.NewSubmitter(client, contract, signer, service.SubmitterConfig{
		GasLimit:       cfg.GasLimit,
		GasPrice:       cfg.GasPriceWei(),
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.ReceiptPoll,
	}, logger)
	serial := service.NewSerialSubmitter(submitter, cfg.SubmitQueue)
	defer serial.Close()

	decisions := service.NewDecisionService(serial, service.NewReader(client, contract, logger), journal, logger)
	health := service.NewHealthService(client, 3*time.Second)

	var limiter *rate.Limiter
	if cfg.SubmitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRPS), max(cfg.SubmitBurst, 1))
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:          logger,
		Addr:            cfg.HTTPAddr,
		DecisionService: decisions,
		HealthService:   health,
		SubmitLimiter:   limiter,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	// gRPC health
	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcapi.NewServer(cfg.GRPCAddr, health, logger)
		go func() {
			if err := grpcSrv.Start(); err != nil {
				logger.Printf("grpc server error: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	// Stop intake first. Handlers still running past the shutdown timeout are
	// waited for by decisions.Close, so their journal lines land before the
	// deferred serial.Close and writer.Close run.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	decisions.Close()
}
