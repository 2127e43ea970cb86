package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fortifiedfantasy/duels/external/espn"
	"github.com/fortifiedfantasy/duels/internal/config"
	"github.com/fortifiedfantasy/duels/internal/infrastructure/identity"
	"github.com/fortifiedfantasy/duels/internal/infrastructure/jobqueue"
	"github.com/fortifiedfantasy/duels/internal/infrastructure/repository/postgres"
	"github.com/fortifiedfantasy/duels/internal/interfaces/httpapi"
	idgen "github.com/fortifiedfantasy/duels/internal/platform/id"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
	"github.com/fortifiedfantasy/duels/internal/platform/resilience"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

// App bundles the HTTP server with the resources it owns.
type App struct {
	Server *http.Server
	db     *sqlx.DB
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	dbURL := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
	db, err := otelsqlx.Connect("postgres", dbURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName(dbNameFromURL(dbURL)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	txManager := postgres.NewTxManager(db)
	ledgerRepo := postgres.NewLedgerRepository(db)
	holdRepo := postgres.NewHoldRepository(db)
	challengeRepo := postgres.NewChallengeRepository(db)
	withdrawalRepo := postgres.NewWithdrawalRepository(db)
	donationRepo := postgres.NewDonationRepository(db)

	ids := idgen.NewRandomGenerator()

	rake, err := usecase.ParseRake(cfg.RakeRate)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("parse RAKE_RATE: %w", err)
	}

	walletSvc := usecase.NewWalletService(txManager, ledgerRepo, holdRepo, ids, logger)
	challengeSvc := usecase.NewChallengeService(txManager, challengeRepo, walletSvc, ids,
		func() (int, int) { return cfg.CurrentSeason, cfg.CurrentWeek }, logger)

	espnClient := espn.NewClient(espn.ClientConfig{
		BaseURL:    cfg.ESPNBaseURL,
		Timeout:    cfg.ESPNTimeout,
		MaxRetries: cfg.ESPNMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.ESPNCircuitEnabled,
			FailureThreshold: cfg.ESPNCircuitFailureCount,
			OpenTimeout:      cfg.ESPNCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ESPNCircuitHalfOpenMaxReq,
		},
	})

	creds := usecase.StaticCredential{Cred: usecase.UpstreamCredential{
		SWID:   cfg.ESPNSWID,
		ESPNS2: cfg.ESPNS2,
	}}

	settlementSvc := usecase.NewSettlementService(txManager, challengeRepo, walletSvc,
		espnClient, creds, usecase.SettlementMode(cfg.SettlementMode), rake, cfg.HouseAccountID, logger)

	withdrawalSvc := usecase.NewWithdrawalService(txManager, withdrawalRepo, walletSvc, ids,
		cfg.AllowedWithdrawMethods, logger)
	donationSvc := usecase.NewDonationService(txManager, donationRepo, walletSvc,
		usecase.HintResolver{}, cfg.PointsPerDollar, logger)

	if cfg.QStashEnabled {
		challengeSvc.SetScheduler(jobqueue.NewQStashPublisher(jobqueue.QStashPublisherConfig{
			BaseURL:          cfg.QStashBaseURL,
			Token:            cfg.QStashToken,
			TargetBaseURL:    cfg.QStashTargetBaseURL,
			Retries:          cfg.QStashRetries,
			InternalJobToken: cfg.InternalJobToken,
			Timeout:          cfg.QStashTimeout,
		}, logger))
	}

	verifier := identity.NewClient(identity.ClientConfig{
		HTTPClient:     &http.Client{Timeout: cfg.IdentityTimeout},
		BaseURL:        cfg.IdentityBaseURL,
		IntrospectPath: cfg.IdentityIntrospectPath,
		CacheTTL:       cfg.IdentityCacheTTL,
		Logger:         logger,
	})

	handler := httpapi.NewHandler(challengeSvc, settlementSvc, walletSvc, withdrawalSvc, donationSvc, logger)
	router := httpapi.NewRouter(handler, verifier, logger, httpapi.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		InternalJobToken:   cfg.InternalJobToken,
		WebhookSecret:      cfg.DonationWebhookSecret,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		_ = db.Close()
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &App{Server: server, db: db}, nil
}

func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
