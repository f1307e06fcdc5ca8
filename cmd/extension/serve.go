package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/comigor/groq-extension-go/internal/catalog"
	"github.com/comigor/groq-extension-go/internal/config"
	"github.com/comigor/groq-extension-go/internal/dispatch"
	"github.com/comigor/groq-extension-go/internal/history"
	"github.com/comigor/groq-extension-go/internal/llm"
	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/metrics"
	"github.com/comigor/groq-extension-go/internal/server"
	"github.com/comigor/groq-extension-go/internal/session"
	"github.com/comigor/groq-extension-go/internal/stream"
	"github.com/comigor/groq-extension-go/internal/verify"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

func serve(ctx context.Context, cfg *config.Config) error {
	var storeOpts []session.StoreOption
	if cfg.History.DBPath != "" {
		archive, err := history.Open(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := archive.Close(); err != nil {
				logger.L.Warn("history close error", "error", err)
			}
		}()
		storeOpts = append(storeOpts, session.WithRecorder(archive))
		logger.L.Info("transcript archive enabled", "path", cfg.History.DBPath)
	}

	overlay, err := catalog.OverlayFromConfig(cfg.Catalog.Models)
	if err != nil {
		return err
	}

	client := llm.NewClient(cfg.LLM)
	completer := llm.NewCompleter(client, cfg.LLM.NonStreamingModels)

	registry, err := tools.NewDefaultRegistry(tools.Deps{
		Catalog:      catalog.NewCache(client, overlay),
		Sessions:     session.NewStore(storeOpts...),
		Completer:    completer,
		DefaultModel: cfg.LLM.DefaultModel,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	d := dispatch.New(verify.NewHMACVerifier(cfg.Verification.KeyID, cfg.Verification.Secret), registry, m)
	responder := stream.NewResponder(d, completer, cfg.LLM.DefaultModel, m)
	router := server.NewRouter(d, responder, registry, m, server.Options{MCP: cfg.Server.MCPEnabled, Version: version})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	logger.L.Info("starting server", "address", srv.Addr, "tools", len(registry.List()), "version", version)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.L.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Warn("server shutdown error", "error", err)
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
