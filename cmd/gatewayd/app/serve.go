package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mcpgw/authgw/internal/accesspoint"
	"github.com/mcpgw/authgw/internal/auth/idp"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/discovery/embed"
	"github.com/mcpgw/authgw/internal/discovery/query"
	"github.com/mcpgw/authgw/internal/discovery/rerank"
	"github.com/mcpgw/authgw/internal/discovery/store"
	"github.com/mcpgw/authgw/internal/discovery/sync"
	"github.com/mcpgw/authgw/internal/gwlog"
	"github.com/mcpgw/authgw/internal/httpapi"
	"github.com/mcpgw/authgw/internal/oauthserver"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
	"github.com/mcpgw/authgw/internal/scope"
	"github.com/mcpgw/authgw/internal/wellknown"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 30 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway's HTTP server",
	Long:  `serve loads configuration from the environment and starts the gateway's OAuth, access-enforcement, well-known, and discovery-search HTTP surface.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8080", "address to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	gwlog.Init(cfg.LogLevel, cfg.LogFormat)

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}

	scopes, err := scope.Load(cfg.ScopesConfigPath)
	if err != nil {
		return fmt.Errorf("loading scope policy: %w", err)
	}

	idps, err := idp.NewRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing identity providers: %w", err)
	}

	tokens := token.NewService(cfg.SecretKey, cfg.JWTSelfSignedKID, cfg.JWTIssuer, cfg.JWTAudience)

	kv, err := buildKVStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing flow storage: %w", err)
	}
	flows := storage.NewFlowTables(kv)

	oauthSrv := oauthserver.NewServer(cfg, idps, tokens, scopes, flows, nil)
	access := accesspoint.NewHandler(cfg, tokens, idps, scopes)
	wk := wellknown.NewHandler(cfg)

	queryAPI, err := buildQueryAPI(ctx, cfg, scopes)
	if err != nil {
		// Discovery index is an optional component (spec §9): the gateway
		// still serves identity/authorization without it, and the search
		// endpoints answer 503 rather than failing startup.
		gwlog.Warnw("discovery index unavailable at startup, search endpoints will return 503", "error", err)
		queryAPI = nil
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Config:    cfg,
		OAuth:     oauthSrv,
		Access:    access,
		WellKnown: wk,
		Query:     queryAPI,
	})

	srv := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		gwlog.Infow("gateway listening", "address", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gwlog.Errorw("server exited with error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	gwlog.Info("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		gwlog.Errorw("server forced to shutdown", "error", err)
		return err
	}
	gwlog.Info("gateway shutdown complete")
	return nil
}

// buildKVStore selects the flow-table backend: Redis when REDIS_URL is set,
// otherwise the single-node in-memory reference store (spec §9).
func buildKVStore(cfg *config.Config) (storage.KVStore, error) {
	if cfg.RedisURL == "" {
		return storage.NewMemoryStore(), nil
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	return storage.NewRedisStore(client), nil
}

// buildQueryAPI assembles the Discovery Index's embedder, vector store, and
// reranker, wiring whichever embeddings provider is configured (spec §6,
// C6). An empty VECTOR_STORE_HOST means discovery is not configured.
func buildQueryAPI(ctx context.Context, cfg *config.Config, scopes *scope.Policy) (*query.API, error) {
	if cfg.VectorStore.Host == "" {
		return nil, errors.New("VECTOR_STORE_HOST not configured")
	}

	embedder, err := embed.New(ctx, cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.Embeddings.Region, cfg.Embeddings.APIKey)
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings provider: %w", err)
	}

	vecStore, err := store.NewWeaviateStore(cfg.VectorStore.Host, cfg.VectorStore.Port, cfg.VectorStore.APIKey, cfg.VectorStore.CollectionPrefix, embedder)
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}
	if err := vecStore.EnsureCollection(ctx, sync.CollectionTools); err != nil {
		return nil, fmt.Errorf("ensuring tools collection: %w", err)
	}
	if err := vecStore.EnsureCollection(ctx, sync.CollectionServers); err != nil {
		return nil, fmt.Errorf("ensuring servers collection: %w", err)
	}

	reranker := rerank.New(embedder)
	index := discovery.NewIndex(vecStore, reranker)
	return query.New(index, scopes), nil
}
