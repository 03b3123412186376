// Command server runs the kiro gateway: an OpenAI-compatible chat
// completions front end over the Kiro/CodeWhisperer streaming API.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, KIRO_CONFIG env, ./config.yaml, or
// /etc/kiro-gateway/config.yaml), then KIRO_* environment overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karthick-kk/kiro-gateway/pkg/auth"
	"github.com/karthick-kk/kiro-gateway/pkg/config"
	"github.com/karthick-kk/kiro-gateway/pkg/credential"
	"github.com/karthick-kk/kiro-gateway/pkg/kiro"
	"github.com/karthick-kk/kiro-gateway/pkg/models"
	"github.com/karthick-kk/kiro-gateway/pkg/observability"
	"github.com/karthick-kk/kiro-gateway/pkg/token"
	"github.com/karthick-kk/kiro-gateway/pkg/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := slog.Default()

	store, err := credential.Load(cfg.Kiro.CredentialFile)
	if err != nil {
		return fmt.Errorf("loading credential: %w", err)
	}

	// A region stored alongside the credential wins over the configured
	// one; the token was issued there.
	region := cfg.Kiro.Region
	if r := store.Current().Region; r != "" {
		region = r
	}

	refreshURL := fmt.Sprintf("https://prod.%s.auth.desktop.kiro.dev/refreshToken", region)
	tokens := token.NewManager(store, refreshURL, token.WithLogger(logger))

	client := kiro.NewClient(tokens, region,
		kiro.WithRequestTimeout(cfg.Kiro.RequestTimeout),
		kiro.WithBackoffBase(cfg.Kiro.RetryBackoffBase),
		kiro.WithClientLogger(logger),
	)

	profileArn := cfg.Kiro.ProfileArn
	if profileArn == "" {
		profileArn = store.Current().ProfileArn
	}

	gateway := kiro.NewGateway(client, profileArn, logger)
	catalog := models.NewCatalog(gateway, models.WithLogger(logger))
	handler := transport.NewHandler(gateway, catalog, transport.WithHandlerLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	var authn *auth.Authenticator
	if cfg.Auth.Type == "apikey" {
		entries := make([]auth.KeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, auth.KeyEntry{Key: k.Key, Subject: k.Subject})
		}
		authn = auth.New(entries)
		logger.Info("api key auth enabled", "keys", len(entries))
	} else {
		logger.Warn("authentication disabled")
	}

	chain := transport.Chain(
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
		observability.MetricsMiddleware,
		auth.Middleware(authn, auth.DefaultBypassEndpoints),
	)

	srv := transport.NewServer(chain(mux), transport.ServerConfig{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway starting",
		"port", cfg.Server.Port,
		"region", region,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe(ctx)
}
