package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/coldline/internal/archiver"
	"github.com/smallbiznis/coldline/internal/config"
	"github.com/smallbiznis/coldline/internal/observability"
	obsmiddleware "github.com/smallbiznis/coldline/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/coldline/internal/observability/metrics"
	obstracing "github.com/smallbiznis/coldline/internal/observability/tracing"
	"github.com/smallbiznis/coldline/internal/ratelimit"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger

	records recorddomain.Service
	journal *tierstate.Journal
	engineA *archiver.Engine
	writes  *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Records recorddomain.Service
	Journal *tierstate.Journal
	Archive *archiver.Engine
	Writes  *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:  p.Gin,
		cfg:     p.Cfg,
		db:      p.DB,
		log:     p.Log.Named("http"),
		records: p.Records,
		journal: p.Journal,
		engineA: p.Archive,
		writes:  p.Writes,
	}

	s.registerRecordRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRecordRoutes() {
	v1 := s.engine.Group("/v1")

	records := v1.Group("/records")
	{
		records.POST("", s.writeThrottle(), s.CreateRecord)
		records.PUT("/:id", s.writeThrottle(), s.PutRecord)
		records.GET("/:id", s.GetRecord)
		records.POST("/:id/restore", s.RestoreRecord)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	arch := admin.Group("/archiver")
	{
		arch.POST("/run", s.RunArchiverCycle)
		arch.GET("/state", s.ListArchiveStates)
		arch.GET("/state/:id", s.GetArchiveState)
	}
}
