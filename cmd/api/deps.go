package main

import (
	"context"
	"log"

	"walletai/internal/ai/agent"
	"walletai/internal/ai/llm"
	"walletai/internal/ai/tools"
	"walletai/internal/domain/reconcile"
	domainsync "walletai/internal/domain/sync"
	"walletai/internal/infrastructure/crypto"
	"walletai/internal/infrastructure/firebase"
	"walletai/internal/infrastructure/plaid"
	"walletai/internal/infrastructure/postgres"
	httphandlers "walletai/internal/interfaces/http"
	"walletai/internal/shared/auth"
	"walletai/internal/shared/config"
	"walletai/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	AuthHandler         *httphandlers.AuthHandler
	LinkHandler         *httphandlers.LinkHandler
	SyncHandler         *httphandlers.SyncHandler
	AccountHandler      *httphandlers.AccountHandler
	TransactionHandler  *httphandlers.TransactionHandler
	ChatHandler         *httphandlers.ChatHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Auth
	JWT *auth.JWT

	// For the scheduler job provider
	Orchestrator    *domainsync.Orchestrator
	UserRepo        *postgres.UserRepository
	DeviceTokenRepo *postgres.DeviceTokenRepository
	FCM             *firebase.Client
	Messages        *messages.Messages
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	itemRepo := postgres.NewItemRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	deviceTokenRepo := postgres.NewDeviceTokenRepository(db)

	// Provider client and sync pipeline
	plaidClient := plaid.NewClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment)
	engine := reconcile.NewEngine(accountRepo, transactionRepo, itemRepo, db)
	orchestrator := domainsync.NewOrchestrator(plaidClient, engine, itemRepo, encryptor)

	// Assistant
	llmClient := llm.NewGeminiClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	registry := tools.NewRegistry(transactionRepo, accountRepo)
	loop := agent.NewLoop(llmClient, registry, cfg.AI.MaxRounds)

	jwt := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	texts, err := messages.Load(cfg.Notifications.MessagesFile)
	if err != nil {
		return nil, err
	}

	// Push notifications are optional; without credentials the nightly
	// sync still runs, it just stays quiet.
	var fcm *firebase.Client
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err = firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, deviceTokenRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase: %v", err)
		}
	} else {
		log.Println("Firebase credentials not configured, push notifications disabled")
	}

	return &Dependencies{
		DB:                  db,
		AuthHandler:         httphandlers.NewAuthHandler(userRepo, jwt),
		LinkHandler:         httphandlers.NewLinkHandler(orchestrator),
		SyncHandler:         httphandlers.NewSyncHandler(orchestrator),
		AccountHandler:      httphandlers.NewAccountHandler(accountRepo),
		TransactionHandler:  httphandlers.NewTransactionHandler(transactionRepo),
		ChatHandler:         httphandlers.NewChatHandler(loop),
		NotificationHandler: httphandlers.NewNotificationHandler(deviceTokenRepo),
		JWT:                 jwt,
		Orchestrator:        orchestrator,
		UserRepo:            userRepo,
		DeviceTokenRepo:     deviceTokenRepo,
		FCM:                 fcm,
		Messages:            texts,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
