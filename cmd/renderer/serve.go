package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/config"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/filters"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/maps"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/api"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/gateway"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/ingress"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/metrics"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/session"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/utils"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/version"

	"github.com/rs/zerolog/log"
)

func serveCommand(configs []string) error {
	settings, err := config.Process(configs)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration, print the defaults with the config command")
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	catalog, err := filters.Load(settings.Content.FiltersDir)
	if err != nil {
		return err
	}

	content, err := maps.NewDirContent(settings.Content.MapsDir, settings.Content.Extensions)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, settings.Store, settings.Content.ConfigsDir)
	if err != nil {
		return err
	}
	defer closeStore()

	configStore := maps.NewBlobConfigs(store)
	repo := state.NewRepository(catalog)
	registry := session.NewRegistry(repo)
	resolver := maps.NewResolver(content, configStore, repo)

	limiter := utils.NewKeyLimiter(
		settings.Gateway.UpdatesPerSecond,
		settings.Gateway.UpdateBurst,
		0,
	)

	var collector *metrics.Metrics
	var metricsHandler http.Handler
	if settings.Metrics.Enabled {
		collector = metrics.New(registry.Len)
		metricsHandler = collector.Handler()
	}

	sessions := gateway.NewGateway(registry, repo, resolver, limiter, collector)
	wsIngress := ingress.NewWSIngress(
		sessions,
		settings.Gateway.WriteTimeout,
		settings.Gateway.SendBuffer,
	)

	routes := api.New(
		catalog,
		content,
		configStore,
		resolver,
		settings.Server.StaticDir,
	)

	httpServer := &http.Server{
		Addr:    settings.ListenAddress(),
		Handler: api.Router(routes, wsIngress, metricsHandler),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("version", version.Version).
			Str("maps", content.Dir()).
			Int("filters", len(catalog.List())).
			Msgf("listening on http://%s", httpServer.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to serve")
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("terminating")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Websockets are hijacked, so the HTTP server does not wait for them
	wsIngress.Shutdown()

	return httpServer.Shutdown(shutdownCtx)
}
