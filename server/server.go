package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/plugin/ai"
	"github.com/binods1313/MutationMechanic-sub000/server/internal/observability"
	"github.com/binods1313/MutationMechanic-sub000/server/middleware"
	apiv1 "github.com/binods1313/MutationMechanic-sub000/server/router/api/v1"
	"github.com/binods1313/MutationMechanic-sub000/server/service/annotation"
	"github.com/binods1313/MutationMechanic-sub000/server/service/explain"
	"github.com/binods1313/MutationMechanic-sub000/server/service/history"
	"github.com/binods1313/MutationMechanic-sub000/server/service/preset"
	"github.com/binods1313/MutationMechanic-sub000/store"
	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

// Server is the MutationMechanic HTTP server.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	Cache             *cache.TieredCache
	FastCache         *cache.Cache
	HistoryService    *history.Service
	PresetService     *preset.Service
	AnnotationService *annotation.Aggregator
	ExplainService    *explain.Service

	registry   *prometheus.Registry
	echoServer *echo.Echo
}

// NewServer wires the cache tiers and services over a migrated store.
// A nil store runs the server with the fast tier only.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile:  profile,
		Store:    store,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cacheMetrics, err := cache.NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	annotationMetrics, err := annotation.NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := observability.NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}

	s.FastCache = cache.New(cache.Config{
		MaxBytes:    profile.FastQuotaBytes,
		Reclaimable: cache.EnvelopeExpired(profile.FastTTL, time.Now),
	})
	if n, err := s.FastCache.LoadSnapshot(profile.FastSnapshotPath()); err != nil {
		slog.Warn("failed to load fast cache snapshot", slog.String("path", profile.FastSnapshotPath()), slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Info("fast cache snapshot loaded", slog.Int("entries", n))
	}
	s.Cache = cache.NewTieredCache(s.FastCache, store, &cache.TieredCacheConfig{
		FastTTL:      profile.FastTTL,
		DurableTTL:   profile.DurableTTL,
		RetentionTTL: profile.RetentionTTL,
		Metrics:      cacheMetrics,
	})

	s.HistoryService = history.NewService(s.Cache)
	s.PresetService = preset.NewService(s.FastCache, nil)
	s.AnnotationService = annotation.NewAggregator(s.Cache, annotation.ProvidersFromProfile(profile), annotation.Config{
		Timeout: profile.ProviderTimeout,
		Metrics: annotationMetrics,
	})

	var llm ai.LLMService
	if cfg := ai.NewConfigFromProfile(profile); cfg != nil {
		if llm, err = ai.NewLLMService(cfg); err != nil {
			slog.Warn("explainer disabled", slog.String("error", err.Error()))
			llm = nil
		}
	}
	s.ExplainService = explain.NewService(llm, s.Cache)

	// Drop history past retention once per process, before serving.
	s.HistoryService.RunMaintenance(ctx)

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.HTTPErrorHandler = apiv1.HTTPErrorHandler
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(middleware.RequestLogger(slog.Default(), httpMetrics))
	echoServer.Use(echomiddleware.CORS())
	s.echoServer = echoServer

	apiV1Service := &apiv1.APIV1Service{
		Profile:           profile,
		HistoryService:    s.HistoryService,
		PresetService:     s.PresetService,
		AnnotationService: s.AnnotationService,
		ExplainService:    s.ExplainService,
		Cache:             s.Cache,
		Gatherer:          s.registry,
	}
	apiV1Service.RegisterRoutes(echoServer, middleware.NewRateLimiter(0, 0).Middleware())

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves until Shutdown.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown stops serving, persists the fast tier and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.FastCache.SaveSnapshot(s.Profile.FastSnapshotPath()); err != nil {
		slog.Error("failed to save fast cache snapshot", slog.String("error", err.Error()))
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			slog.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
	slog.Info("mutationmechanic stopped properly")
}
