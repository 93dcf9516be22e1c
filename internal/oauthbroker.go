package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ledgerlink/oauth-broker/internal/broker"
	"github.com/ledgerlink/oauth-broker/internal/config"
	"github.com/ledgerlink/oauth-broker/internal/crypto"
	"github.com/ledgerlink/oauth-broker/internal/exchange"
	"github.com/ledgerlink/oauth-broker/internal/log"
	"github.com/ledgerlink/oauth-broker/internal/origin"
	"github.com/ledgerlink/oauth-broker/internal/replay"
	"github.com/ledgerlink/oauth-broker/internal/server"
	"github.com/ledgerlink/oauth-broker/internal/state"
	"github.com/ledgerlink/oauth-broker/internal/storage"
)

// cleanupInterval is how often expired replay entries are swept
const cleanupInterval = time.Minute

// OAuthBroker represents the complete broker application
type OAuthBroker struct {
	config     config.Config
	httpServer *server.HTTPServer
	cleanup    *replay.CleanupManager
}

// NewOAuthBroker builds the broker application with all dependencies
func NewOAuthBroker(ctx context.Context, cfg config.Config) (*OAuthBroker, error) {
	brokerCfg := cfg.Broker

	log.LogInfoWithFields("oauthbroker", "Building broker application", map[string]any{
		"addr":          brokerCfg.Addr,
		"allowedOrigin": brokerCfg.AllowedOrigin,
		"storage":       string(brokerCfg.Storage),
		"pkce":          brokerCfg.Provider.PKCE,
	})

	signingKey, err := crypto.DeriveKey([]byte(brokerCfg.MasterSecret), crypto.KeyInfoStateSigning, crypto.DerivedKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	var (
		replayGuard replay.Guard
		store       storage.Store
	)
	switch brokerCfg.Storage {
	case config.StorageKindFirestore:
		encryptionKey, err := crypto.DeriveKey([]byte(brokerCfg.MasterSecret), crypto.KeyInfoTokenStorage, crypto.DerivedKeyLength)
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		encryptor, err := crypto.NewEncryptor(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}

		client, err := newFirestoreClient(ctx, brokerCfg.GCPProject, brokerCfg.FirestoreDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}

		log.LogInfoWithFields("oauthbroker", "Using Firestore storage", map[string]any{
			"project":    brokerCfg.GCPProject,
			"database":   brokerCfg.FirestoreDatabase,
			"collection": brokerCfg.FirestoreCollection,
		})

		replayGuard = replay.NewFirestoreGuard(client, brokerCfg.FirestoreCollection+"_consumed_codes", brokerCfg.ReplayTTL)
		store, err = storage.NewFirestoreStore(client, brokerCfg.FirestoreCollection, encryptor)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore store: %w", err)
		}
	default:
		log.LogInfoWithFields("oauthbroker", "Using in-memory storage", nil)
		replayGuard = replay.NewMemoryGuard(brokerCfg.ReplayTTL)
		store = storage.NewMemoryStore()
	}

	exchanger := exchange.NewClient(exchange.Config{
		ClientID:         brokerCfg.Provider.ClientID,
		ClientSecret:     string(brokerCfg.Provider.ClientSecret),
		AuthorizationURL: brokerCfg.Provider.AuthorizationURL,
		TokenURL:         brokerCfg.Provider.TokenURL,
		RedirectURI:      brokerCfg.Provider.RedirectURI,
		Scopes:           brokerCfg.Provider.Scopes,
		Timeout:          brokerCfg.ExchangeTimeout,
	})

	originGuard := origin.NewGuard(brokerCfg.AllowedOrigin)
	states := state.NewIssuer(signingKey, brokerCfg.StateTTL)

	b := broker.New(originGuard, states, replayGuard, exchanger, store, broker.Options{
		UsePKCE:               brokerCfg.Provider.PKCE,
		ReturnTokensToBrowser: brokerCfg.ReturnTokensToBrowser,
	})

	handlers := server.NewHandlers(b, originGuard)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.HealthHandler)
	mux.HandleFunc("/oauth/connect", handlers.ConnectHandler)
	mux.HandleFunc("/oauth/callback", handlers.CallbackHandler)
	mux.HandleFunc("/oauth/refresh", handlers.RefreshHandler)

	handler := server.ChainMiddleware(mux,
		server.NewCORSMiddleware(originGuard),
		server.NewLoggerMiddleware("http"),
	)

	return &OAuthBroker{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, brokerCfg.Addr),
		cleanup:    replay.NewCleanupManager(replayGuard, cleanupInterval),
	}, nil
}

// newFirestoreClient opens a Firestore client for the configured database
func newFirestoreClient(ctx context.Context, projectID, database string) (*firestore.Client, error) {
	if database != "" {
		return firestore.NewClientWithDatabase(ctx, projectID, database)
	}
	return firestore.NewClient(ctx, projectID)
}

// Run starts the broker and blocks until shutdown
func (ob *OAuthBroker) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ob.cleanup.Start(ctx)

	// Channel to signal errors that should trigger shutdown
	errChan := make(chan error, 1)

	go func() {
		if err := ob.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("oauthbroker", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("oauthbroker", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	stopErr := ob.httpServer.Stop(shutdownCtx)
	ob.cleanup.Stop()
	if stopErr != nil {
		log.LogErrorWithFields("oauthbroker", "HTTP server shutdown error", map[string]any{
			"error": stopErr.Error(),
		})
		return stopErr
	}

	log.LogInfoWithFields("oauthbroker", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}
