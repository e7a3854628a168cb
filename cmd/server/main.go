// Package main is the entry point for the tradegate trading service:
// one process running the decision pipeline, its schedule, and the API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/backup"
	"github.com/tradegate/tradegate/internal/clients/aiclient"
	"github.com/tradegate/tradegate/internal/clients/alpaca"
	"github.com/tradegate/tradegate/internal/clients/search"
	"github.com/tradegate/tradegate/internal/clients/yahoo"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/market_regime"
	"github.com/tradegate/tradegate/internal/marketdata"
	"github.com/tradegate/tradegate/internal/modules/ai"
	"github.com/tradegate/tradegate/internal/modules/audit"
	audithandlers "github.com/tradegate/tradegate/internal/modules/audit/handlers"
	"github.com/tradegate/tradegate/internal/modules/execution"
	"github.com/tradegate/tradegate/internal/modules/guides"
	guideshandlers "github.com/tradegate/tradegate/internal/modules/guides/handlers"
	"github.com/tradegate/tradegate/internal/modules/risk"
	riskhandlers "github.com/tradegate/tradegate/internal/modules/risk/handlers"
	"github.com/tradegate/tradegate/internal/modules/sentiment"
	"github.com/tradegate/tradegate/internal/modules/settlement"
	settlementhandlers "github.com/tradegate/tradegate/internal/modules/settlement/handlers"
	"github.com/tradegate/tradegate/internal/modules/symbols"
	symbolshandlers "github.com/tradegate/tradegate/internal/modules/symbols/handlers"
	"github.com/tradegate/tradegate/internal/modules/trading"
	tradinghandlers "github.com/tradegate/tradegate/internal/modules/trading/handlers"
	"github.com/tradegate/tradegate/internal/modules/validation"
	"github.com/tradegate/tradegate/internal/scheduler"
	"github.com/tradegate/tradegate/internal/server"
	"github.com/tradegate/tradegate/pkg/logger"
)

func main() {
	// Load configuration. Validation fails fast here: live mode without
	// explicit confirmation or execution without broker keys never get
	// past startup.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting tradegate")

	// Open databases: app state, the append-only audit ledger, and the
	// bar cache next to the app DB
	appDB, err := database.New(database.Config{
		Path:    cfg.AppDBPath,
		Profile: database.ProfileStandard,
		Name:    "app",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open app database")
	}
	defer appDB.Close()

	auditDB, err := database.New(database.Config{
		Path:    cfg.AuditDBPath,
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit database")
	}
	defer auditDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(filepath.Dir(cfg.AppDBPath), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Run migrations
	for _, db := range []*database.DB{appDB, auditDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Shared event manager
	eventManager := events.NewManager(log)

	// Repositories
	auditRepo := audit.NewRepository(auditDB.Conn(), log)
	guideRepo := guides.NewRepository(appDB.Conn(), log)
	symbolRepo := symbols.NewRepository(appDB.Conn(), log)

	// Broker client. Mode sanity was checked at config load, so this
	// only fails on programmer error.
	broker, err := alpaca.NewBrokerClient(alpaca.BrokerConfig{
		APIKey:        cfg.AlpacaAPIKey,
		APISecret:     cfg.AlpacaSecretKey,
		Mode:          cfg.AlpacaMode,
		LiveConfirmed: cfg.AlpacaLiveConfirmed,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}
	brokerConfigured := cfg.AlpacaAPIKey != "" && cfg.AlpacaSecretKey != ""

	// Market data provider chain
	marketData := buildMarketData(cfg, cacheDB, log)

	// Pipeline stages
	gate := validation.NewGate(validation.Config{}, log)
	sentimentStage := sentiment.NewStage(sentiment.Config{MaxNegativeSignals: cfg.MaxNegativeSignals}, log)
	classifier := aiclient.NewClient(aiclient.Config{
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
	}, log)
	aiStage := ai.NewStage(classifier, ai.Config{MinConfidence: cfg.MinConfidence}, log)
	searchClient := search.NewClient(search.Config{
		BaseURL: cfg.SearchBaseURL,
		APIKey:  cfg.SearchAPIKey,
	}, log)
	regimes := market_regime.NewDetector(market_regime.Config{}, log)

	riskCfg := risk.Config{
		MaxRiskPerTrade: cfg.MaxRiskPerTrade,
		MaxDailyLoss:    cfg.MaxDailyLoss,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		CooldownSeconds: cfg.CooldownSeconds,
		AccountSize:     cfg.AccountSize,
	}
	governor := risk.NewGovernor(riskCfg, log)

	// Services
	guideService := guides.NewService(guideRepo, eventManager, log)
	symbolService := symbols.NewService(symbolRepo, cfg.Symbols, eventManager, log)
	executor := execution.NewService(broker, auditRepo, eventManager, execution.Config{MaxSlippageBps: cfg.MaxSlippageBps}, log)
	settlementService := settlement.NewService(auditRepo, broker, governor, eventManager, log)

	orchestrator := trading.NewOrchestrator(
		marketData,
		searchClient,
		gate,
		sentimentStage,
		guideService,
		aiStage,
		governor,
		executor,
		auditRepo,
		symbolService,
		regimes,
		eventManager,
		trading.Config{
			Enabled:            cfg.ExecutionEnabled,
			EnforceMarketHours: cfg.EnforceMarketHours,
		},
		log,
	)

	// Trade-updates stream feeds settlement without waiting for the poll
	if brokerConfigured {
		streamBase := ""
		if cfg.AlpacaMode == "live" {
			streamBase = "https://api.alpaca.markets"
		}
		stream := alpaca.NewTradeUpdateStream(alpaca.StreamConfig{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaSecretKey,
			BaseURL:   streamBase,
		}, settlementService.HandleTradeUpdate, eventManager, log)
		if err := stream.Start(); err != nil {
			log.Warn().Err(err).Msg("Trade update stream not connected yet")
		}
		defer stream.Stop()
	}

	// Audit backups are optional; without a bucket the job warns and
	// skips on every tick
	backupCfg := backup.Config{
		Bucket: cfg.BackupS3Bucket,
		Prefix: cfg.BackupS3Prefix,
		Region: cfg.AWSRegion,
	}
	var uploader backup.Uploader
	if backupCfg.Bucket != "" {
		uploader, err = backup.NewUploader(context.Background(), backupCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup uploader")
		}
	}
	backupService := backup.NewService(auditDB, uploader, eventManager, backupCfg, log)

	// Scheduler and jobs
	sched := scheduler.New(log)

	cycleJob := scheduler.NewTradingCycleJob(scheduler.TradingCycleConfig{
		Runner:        orchestrator,
		Symbols:       symbolService,
		EventManager:  eventManager,
		ExecuteTrades: cfg.ExecutionEnabled,
		Log:           log,
	})
	if err := sched.AddJob(fmt.Sprintf("@every %ds", cfg.PollIntervalSeconds), cycleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register trading cycle job")
	}
	if err := sched.AddJob("@every 30s", scheduler.NewSettlementPollJob(settlementService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register settlement poll job")
	}
	if err := sched.AddJob("@daily", scheduler.NewAuditBackupJob(backupService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register audit backup job")
	}
	if err := sched.AddJob("@every 1h", scheduler.NewWALCheckpointJob([]*database.DB{appDB, auditDB, cacheDB}, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server. The status endpoint reports the broker only when
	// credentials are configured.
	var statusBroker domain.BrokerAdapter
	if brokerConfigured {
		statusBroker = broker
	}
	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		AppDB:      appDB,
		AuditDB:    auditDB,
		Broker:     statusBroker,
		Trading:    tradinghandlers.NewTradingHandlers(orchestrator, auditRepo, log),
		Guides:     guideshandlers.NewGuideHandlers(guideService, log),
		Symbols:    symbolshandlers.NewSymbolHandlers(symbolService, log),
		Audit:      audithandlers.NewAuditHandlers(auditRepo, log),
		Settlement: settlementhandlers.NewSettlementHandlers(settlementService, log),
		Risk:       riskhandlers.NewRiskHandlers(governor, riskCfg, log),
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildMarketData assembles the provider chain for the configured
// source, wrapping it in the bar cache when a TTL is set
func buildMarketData(cfg *config.Config, cacheDB *database.DB, log zerolog.Logger) domain.MarketDataProvider {
	alpacaData := alpaca.NewMarketDataClient(alpaca.MarketDataConfig{
		APIKey:    cfg.AlpacaAPIKey,
		APISecret: cfg.AlpacaSecretKey,
	}, log)
	yahooData := yahoo.NewClient(yahoo.Config{}, log)

	var provider domain.MarketDataProvider
	switch cfg.MarketDataProvider {
	case "alpaca":
		provider = alpacaData
	case "yahoo":
		provider = yahooData
	default:
		provider = marketdata.NewHybridProvider(alpacaData, yahooData, marketdata.HybridConfig{}, log)
	}

	if cfg.MarketDataCacheTTL > 0 {
		provider = marketdata.NewCachedProvider(provider, cacheDB.Conn(), marketdata.CacheConfig{
			TTL: time.Duration(cfg.MarketDataCacheTTL) * time.Second,
		}, log)
	}
	return provider
}
