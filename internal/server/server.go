package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/dataview-hq/dataview/internal/api/http"
	"github.com/dataview-hq/dataview/internal/api/middleware"
	"github.com/dataview-hq/dataview/internal/api/ws"
	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/domain/identity"
	"github.com/dataview-hq/dataview/internal/domain/lineage"
	"github.com/dataview-hq/dataview/internal/domain/registry"
	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/domain/workbench"
	"github.com/dataview-hq/dataview/internal/infrastructure/config"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/monitoring"
	"github.com/dataview-hq/dataview/internal/storage/cache"
)

// Server holds the wired gateway.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	router  *gin.Engine
	http    *http.Server
	metrics *monitoring.Metrics

	resolver  *identity.Resolver
	backend   *backend.Client
	registry  *registry.Manager
	lineage   *lineage.Store
	workbench *workbench.Service
	hub       *ws.Hub
}

// New wires all gateway components from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics()

	// Identity resolves exactly once, before anything touches the cache.
	resolver := identity.NewResolver()
	if cfg.Identity.User != "" {
		resolver.Resolve(identity.Derive(cfg.Identity.User))
	} else {
		resolver.Resolve(identity.Mint())
	}
	namespace, _ := resolver.Namespace()
	log.Info("identity resolved", zap.String("namespace", namespace))

	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "dataview-cache")
	}
	store := cache.New(cacheDir, cfg.Cache.CompressThreshold, metrics)

	backendClient := backend.New(cfg.Backend, metrics, log)
	reconciler := state.New(store, resolver, log)
	reg := registry.NewManager(store, resolver, reconciler, registry.LoadSeed(cfg.Registry.SeedFile), metrics, log)
	lineageStore := lineage.NewStore(backendClient, reg.Active, metrics, log)
	hub := ws.NewHub(metrics, log)
	wb := workbench.NewService(backendClient, reconciler, lineageStore, hub, log)

	reg.OnSelect(func(sessionID string) {
		hub.Publish("session", map[string]string{"active_id": sessionID})
		go func() {
			if err := lineageStore.Refresh(context.Background(), sessionID); err != nil {
				log.Warn("lineage refresh on select failed",
					zap.String("session_id", sessionID), zap.Error(err))
				return
			}
			hub.Publish("lineage", map[string]string{"session_id": sessionID})
		}()
	})

	if cfg.Logging.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    router,
		metrics:   metrics,
		resolver:  resolver,
		backend:   backendClient,
		registry:  reg,
		lineage:   lineageStore,
		workbench: wb,
		hub:       hub,
	}

	handler := apihttp.NewHandler(reg, lineageStore, wb, reconciler, backendClient, log)
	handler.Register(router)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", hub.HandleConnection)

	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("gateway listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and drains background work.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.workbench.Wait()
	s.log.Info("gateway stopped")
	return err
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"backend":        s.cfg.Backend.BaseURL,
		"breaker":        s.backend.BreakerState().String(),
		"ws_connections": s.hub.Connections(),
	})
}
