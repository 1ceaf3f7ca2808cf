// Package httpinterface exposes the accounts synced by the daemon over a
// REST API, a websocket stream of their sync events and the Prometheus
// metrics endpoint.
package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shielded-wallet/zsyncd/internal/core/application/adapter"
	"github.com/shielded-wallet/zsyncd/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

const (
	readTimeout     = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

var (
	ErrNullAddr    = errors.New("listening address must not be null")
	ErrNullManager = errors.New("adapter manager must not be null")
)

// Opts ...
type Opts struct {
	Addr    string
	Manager *adapter.Manager
	// Gatherer is served on /metrics, the default registry if nil.
	Gatherer prometheus.Gatherer
	Logger   log.FieldLogger
}

func (o *Opts) validate() error {
	if o.Addr == "" {
		return ErrNullAddr
	}
	if o.Manager == nil {
		return ErrNullManager
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return nil
}

type service struct {
	opts   Opts
	router *mux.Router
	log    log.FieldLogger

	lock    sync.Mutex
	server  *http.Server
	streams *streamHub
}

// NewService returns the HTTP interface of the daemon, Start makes it
// listen on the configured address.
func NewService(opts Opts) (interfaces.Service, error) {
	return newService(opts)
}

// NewHandler returns the router of the HTTP interface without listening,
// mostly for tests and for mounting it into another server.
func NewHandler(opts Opts) (http.Handler, func(), error) {
	s, err := newService(opts)
	if err != nil {
		return nil, nil, err
	}
	return s.router, s.streams.closeAll, nil
}

func newService(opts Opts) (*service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %w", err)
	}

	s := &service{
		opts:    opts,
		log:     opts.Logger.WithField("interface", "http"),
		streams: newStreamHub(),
	}
	s.router = s.newRouter()
	return s, nil
}

func (s *service) newRouter() *mux.Router {
	h := &handler{manager: s.opts.Manager, log: s.log, streams: s.streams}

	r := mux.NewRouter()
	r.Use(h.logRequest)
	r.Handle("/metrics", promhttp.HandlerFor(
		s.opts.Gatherer, promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", h.deleteAccount).Methods(http.MethodDelete)
	api.HandleFunc("/accounts/{id}/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/balance", h.balance).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/address", h.address).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/resync", h.resync).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/debug", h.debug).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions", h.listTransactions).
		Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions", h.submitTransaction).
		Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/stream", h.stream).Methods(http.MethodGet)
	return r
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.server != nil {
		return fmt.Errorf("http interface already started")
	}

	lis, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http interface stopped unexpectedly")
		}
	}(s.server)

	s.log.Infof("http interface is listening on %s", lis.Addr())
	return nil
}

func (s *service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.server == nil {
		return
	}

	// Websocket connections are hijacked and not tracked by the server.
	s.streams.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("failed to gracefully stop http interface")
	}
	s.server = nil

	s.log.Info("http interface stopped")
}
