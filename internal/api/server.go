package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"soleil-forecast/config"
	"soleil-forecast/internal/peak"
	"soleil-forecast/internal/production"
	"soleil-forecast/internal/storage"
)

// Forecaster owns the published model results.
type Forecaster interface {
	Snapshot() *production.Snapshot
	Refresh(ctx context.Context, startDate, endDate time.Time) (production.RefreshReport, error)
	Now() time.Time
	Location() *time.Location
}

// Store serves collected inverter readings and the refresh history.
type Store interface {
	Measurements(from, to time.Time) ([]production.Measurement, error)
	GetReadingsByRange(from, to time.Time) ([]storage.InverterReading, error)
	GetReadingsWithLimit(limit int) ([]storage.InverterReading, error)
	GetLatestReading() (*storage.InverterReading, error)
	RefreshRuns(limit int) ([]storage.RefreshRun, error)
	ForecastDays(from, to time.Time) ([]storage.ForecastDay, error)
}

type Server struct {
	router     *gin.Engine
	server     *http.Server
	forecaster Forecaster
	store      Store
	port       int
	log        logrus.FieldLogger
}

type ServerConfig struct {
	Port       int
	Forecaster Forecaster
	// Store is optional; the inverter and history endpoints answer 503 without it.
	Store     Store
	Auth      config.AuthConfig
	Logger    logrus.FieldLogger
	IgnoreGin bool
}

func NewServer(cfg ServerConfig) *Server {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(config.GinLogrusLogger(log, cfg.IgnoreGin))

	s := &Server{
		router:     router,
		forecaster: cfg.Forecaster,
		store:      cfg.Store,
		port:       cfg.Port,
		log:        log.WithField("component", "api"),
	}
	s.setupRoutes(authRequired(cfg.Auth))
	return s
}

func (s *Server) setupRoutes(auth gin.HandlerFunc) {
	s.router.GET("/status/health", s.healthHandler)

	api := s.router.Group("/api", auth)
	{
		api.GET("/production/peak", s.peakHandler)
		api.GET("/production/bounds", s.boundsHandler)
		api.GET("/production/weather", s.weatherHandler)
		api.GET("/production/daily", s.dailyHandler)
		api.GET("/production/accuracy", s.accuracyHandler)
		api.POST("/production/refresh", s.refreshHandler)
		api.GET("/production/runs", s.runsHandler)
		api.GET("/production/history", s.historyHandler)
		api.GET("/temperature/stats", s.temperatureStatsHandler)

		api.GET("/inverter/readings", s.readingsHandler)
		api.GET("/inverter/latest", s.latestReadingHandler)
	}

	grafana := s.router.Group("/grafana", auth)
	{
		grafana.GET("/", s.grafanaConnectionHandler)
		grafana.POST("/metrics", s.grafanaMetricsHandler)
		grafana.POST("/metric-payload-options", s.grafanaPayloadOptionsHandler)
		grafana.POST("/query", s.grafanaQueryHandler)
	}
}

// Handler is the router wrapped with response compression.
func (s *Server) Handler() http.Handler {
	return gziphandler.GzipHandler(s.router)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("port", s.port).Info("API server starting")
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func errorBody(errs ...string) gin.H {
	return gin.H{"status": "error", "errors": errs}
}

func badRequest(c *gin.Context, errs []string) {
	c.JSON(http.StatusBadRequest, errorBody(errs...))
}

// queryFailed maps errors from the model to responses.
func (s *Server) queryFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, production.ErrModelNotReady):
		c.JSON(http.StatusServiceUnavailable, errorBody(msgNotReady))
	case errors.Is(err, peak.ErrNoData):
		badRequest(c, []string{msgNoData})
	case errors.Is(err, peak.ErrInvalidQuery), errors.Is(err, production.ErrInvalidRange):
		badRequest(c, []string{err.Error()})
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	snap := s.forecaster.Snapshot()
	body := gin.H{
		"status": "ok",
		"model":  snap.State().String(),
	}
	if snap != nil {
		body["generated_at"] = snap.GeneratedAt
	}
	c.JSON(http.StatusOK, body)
}
