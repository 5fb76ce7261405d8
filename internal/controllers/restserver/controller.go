package restserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chrissnell/lunarcal/internal/log"
	"github.com/chrissnell/lunarcal/internal/metrics"
	"github.com/chrissnell/lunarcal/pkg/config"
	"github.com/chrissnell/lunarcal/pkg/lunar"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Calendar is the set of lunar calendar operations served over HTTP.
type Calendar interface {
	DatetimeToLunarDate(ctx context.Context, t time.Time) (lunar.LunarDate, error)
	LunarDateToDatetime(ctx context.Context, ld lunar.LunarDate, loc *time.Location) (time.Time, error)
	Nisan1(ctx context.Context, year int, loc *time.Location) (time.Time, error)
	YearTable(ctx context.Context, year int) (lunar.YearTable, error)
	Phase(ctx context.Context, t time.Time) (lunar.MoonPhase, error)
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	calendar   Calendar
	location   *time.Location
	logger     *zap.SugaredLogger
	handlers   *Handlers
	errs       chan error
}

// NewController creates a new REST server controller. Instants are rendered
// in loc unless a request names another zone.
func NewController(ctx context.Context, wg *sync.WaitGroup, cal Calendar, rc config.RESTServerData, loc *time.Location, logger *zap.SugaredLogger) (*Controller, error) {
	if cal == nil {
		return nil, fmt.Errorf("REST server requires a calendar")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = config.DefaultListenAddr
	}

	// Set default HTTP port if not specified
	if rc.HTTPPort == 0 {
		logger.Infof("rest.http_port not provided; defaulting to %d", config.DefaultHTTPPort)
		rc.HTTPPort = config.DefaultHTTPPort
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		calendar:   cal,
		location:   loc,
		logger:     logger,
		errs:       make(chan error, 1),
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.HTTPPort)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infow("starting REST server", "addr", c.Server.Addr)
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
			c.errs <- fmt.Errorf("REST server: %w", err)
		}
	}()

	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Server.Shutdown(shutdownCtx); err != nil {
			c.logger.Errorf("REST server shutdown: %v", err)
		}
	}()

	return nil
}

// Err delivers the error that stopped the server, if it stopped for any
// reason other than shutdown.
func (c *Controller) Err() <-chan error {
	return c.errs
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger, observeRequest))

	api := router.PathPrefix("/lunar").Methods(http.MethodGet).Subrouter()
	api.HandleFunc("/date", c.handlers.GetLunarDate)
	api.HandleFunc("/datetime/{year:-?[0-9]+}/{month:[0-9]+}/{day}", c.handlers.GetDatetime)
	api.HandleFunc("/nisan1/{year:-?[0-9]+}", c.handlers.GetNisan1)
	api.HandleFunc("/leap/{year:-?[0-9]+}", c.handlers.GetLeapYear)
	api.HandleFunc("/year/{year:-?[0-9]+}", c.handlers.GetYear)
	api.HandleFunc("/phase", c.handlers.GetPhase)

	router.HandleFunc("/lunar/add", c.handlers.PostAdd).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// observeRequest counts requests by route template so that path parameters
// do not explode label cardinality.
func observeRequest(req *http.Request, entry log.HTTPLogEntry) {
	route := "unmatched"
	if r := mux.CurrentRoute(req); r != nil {
		if tmpl, err := r.GetPathTemplate(); err == nil {
			route = tmpl
		}
	}
	metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(entry.Status)).Inc()
}
