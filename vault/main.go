package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/iceinvein/notari-go/internal/anchor"
	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/pipeline"
	"github.com/iceinvein/notari-go/internal/platform/auditlog"
	"github.com/iceinvein/notari-go/internal/platform/auth"
	"github.com/iceinvein/notari-go/internal/platform/env"
	"github.com/iceinvein/notari-go/internal/platform/httpserver"
	"github.com/iceinvein/notari-go/internal/platform/objectstore"
	"github.com/iceinvein/notari-go/internal/platform/postgres"
	"github.com/iceinvein/notari-go/internal/repo"
	repopg "github.com/iceinvein/notari-go/internal/repo/postgres"
	storageobjectstore "github.com/iceinvein/notari-go/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("NOTARI_VAULT_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("NOTARI_VAULT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	presignTTL, err := env.Duration("NOTARI_VAULT_PRESIGN_TTL", 10*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	sessionLinger, err := env.Duration("NOTARI_SESSION_LINGER", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	manifestStore, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("manifest store init failed", "error", err)
		os.Exit(2)
	}

	anchorClient, anchorCfg, err := buildAnchoring(ctx, logger)
	if err != nil {
		logger.Error("invalid anchoring config", "error", err)
		os.Exit(2)
	}

	chains, err := anchor.LoadChainRegistry(env.String("NOTARI_CHAINS_FILE", ""))
	if err != nil {
		logger.Error("invalid chain registry", "error", err)
		os.Exit(2)
	}

	recordingStore := repopg.NewRecordingStore(db)
	stageEventStore := repopg.NewStageEventStore(db)
	anchorStore := repopg.NewAnchorStore(db)

	confirmer := anchor.NewConfirmer(anchorClient, anchorCfg, anchor.ConfirmerOptions{
		Chains: chains,
		OnUpdated: func(recordingID string, record domain.AnchorRecord) {
			logger.Info("recording anchored",
				"recording_id", recordingID,
				"chain_name", record.ChainName,
				"tx_hash", record.TxHash,
			)
		},
	})

	bus := pipeline.NewBus()
	var registry *pipeline.Registry
	registry = pipeline.NewRegistry(bus, pipeline.RegistryOptions{
		OnSessionComplete: func(sessionID string) {
			if anchorCfg.AutoAnchor {
				go autoAnchorSession(logger, recordingStore, anchorStore, confirmer, sessionID)
			}
			time.AfterFunc(sessionLinger, func() { registry.Release(sessionID) })
		},
		OnSessionError: func(sessionID, message string) {
			logger.Warn("pipeline failed", "session_id", sessionID, "error", message)
			time.AfterFunc(sessionLinger, func() { registry.Release(sessionID) })
		},
	})
	defer registry.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("vault"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"vault",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newVaultAPI(logger, stageEventStore, recordingStore, anchorStore, bus, registry, confirmer, manifestStore, storeCfg, presignTTL, db)
	api.register(mux)

	handler, err := wrapAuth(ctx, logger, db, mux)
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	cfg := httpserver.Config{
		Service:         "vault",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "vault", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildAnchoring assembles the anchoring client and capability config.
// The env values seed the config; when the capability is enabled the
// remote service's own view replaces them so the vault and the chain
// back-end cannot disagree about readiness.
func buildAnchoring(ctx context.Context, logger *slog.Logger) (anchor.Client, anchor.Config, error) {
	enabled, err := env.Bool("NOTARI_ANCHOR_ENABLED", false)
	if err != nil {
		return nil, anchor.Config{}, err
	}
	autoAnchor, err := env.Bool("NOTARI_ANCHOR_AUTO", false)
	if err != nil {
		return nil, anchor.Config{}, err
	}
	chainID, err := env.Int("NOTARI_ANCHOR_CHAIN_ID", 0)
	if err != nil {
		return nil, anchor.Config{}, err
	}
	clientTimeout, err := env.Duration("NOTARI_ANCHOR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, anchor.Config{}, err
	}

	walletAddress := strings.TrimSpace(env.String("NOTARI_ANCHOR_WALLET_ADDRESS", ""))
	cfg := anchor.Config{
		Enabled:       enabled,
		Environment:   env.String("NOTARI_ANCHOR_ENVIRONMENT", anchor.EnvironmentMock),
		ChainID:       int64(chainID),
		ChainName:     env.String("NOTARI_ANCHOR_CHAIN_NAME", ""),
		AutoAnchor:    autoAnchor,
		HasWallet:     walletAddress != "",
		WalletAddress: walletAddress,
	}

	serviceURL := env.String("NOTARI_ANCHOR_SERVICE_URL", "http://localhost:9100")
	var client anchor.Client
	if tokenURL := strings.TrimSpace(env.String("NOTARI_ANCHOR_OAUTH_TOKEN_URL", "")); tokenURL != "" {
		client, err = anchor.NewOAuthHTTPClient(ctx, serviceURL, clientcredentials.Config{
			TokenURL:     tokenURL,
			ClientID:     env.String("NOTARI_ANCHOR_OAUTH_CLIENT_ID", ""),
			ClientSecret: env.String("NOTARI_ANCHOR_OAUTH_CLIENT_SECRET", ""),
		}, clientTimeout)
	} else {
		client, err = anchor.NewHTTPClient(
			serviceURL,
			env.String("NOTARI_ANCHOR_SERVICE_TOKEN", ""),
			clientTimeout,
		)
	}
	if err != nil {
		return nil, anchor.Config{}, err
	}

	if cfg.Enabled {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		remote, err := client.GetConfig(fetchCtx)
		if err != nil {
			logger.Warn("anchoring service config unavailable, using env config", "error", err)
		} else {
			remote.AutoAnchor = cfg.AutoAnchor
			cfg = remote
		}
	}
	return client, cfg, nil
}

func autoAnchorSession(logger *slog.Logger, recordings repo.RecordingRepository, anchors repo.AnchorRepository, confirmer *anchor.Confirmer, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	found, err := recordings.ListRecordings(ctx, repo.RecordingFilter{SessionID: sessionID, Limit: 1})
	if err != nil {
		logger.Error("auto-anchor lookup failed", "session_id", sessionID, "error", err)
		return
	}
	if len(found) == 0 {
		return
	}
	recording := found[0]

	// The confirmer only remembers anchors from this process lifetime.
	// A persisted record (restart, duplicate terminal event after the
	// tracker lingered out) must block the remote call; an unknown
	// anchor state must too, the remote action is irreversible.
	if _, err := anchors.GetAnchor(ctx, recording.ID); err == nil {
		return
	} else if !errors.Is(err, repo.ErrNotFound) {
		logger.Error("auto-anchor state check failed", "recording_id", recording.ID, "error", err)
		return
	}

	record, err := confirmer.Confirm(ctx, recording.ID, recording.ManifestKey)
	if err != nil {
		if errors.Is(err, anchor.ErrAlreadyAnchored) || errors.Is(err, anchor.ErrConfirmPending) {
			return
		}
		logger.Error("auto-anchor failed", "session_id", sessionID, "recording_id", recording.ID, "error", err)
		return
	}
	if err := anchors.CreateAnchor(ctx, record); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		logger.Error("persist auto-anchor failed", "recording_id", recording.ID, "error", err)
	}
}

// wrapAuth applies the configured authentication mode around the mux.
// Health endpoints stay open in every mode.
func wrapAuth(ctx context.Context, logger *slog.Logger, db *sql.DB, mux http.Handler) (http.Handler, error) {
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if authCfg.Mode == auth.ModeDisabled {
		return mux, nil
	}

	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeOIDC:
		authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
		if err != nil {
			return nil, err
		}
	}

	return auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.MethodRoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, "vault", event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz"},
	}.Wrap(mux), nil
}
